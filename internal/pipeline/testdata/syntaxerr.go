package broken

func Broken( {
}

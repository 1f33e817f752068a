package utils

import (
	"github.com/gookit/color"
)

func GreenString(format string, a ...interface{}) string {
	return color.FgGreen.Sprintf(format, a...)
}

func RedString(format string, a ...interface{}) string {
	return color.FgRed.Sprintf(format, a...)
}

//go:build !linux && !darwin && !windows && !openbsd && !netbsd && !freebsd

package main

import (
	"fmt"
)

func UsernameSurvey() string {
	fmt.Println("Survey disabled, due to incompatibility with some platforms: pass --name instead")
	return ""
}

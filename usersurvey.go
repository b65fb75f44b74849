//go:build linux || darwin || windows || openbsd || netbsd || freebsd

package main

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

func UsernameSurvey() string {
	name := ""
	prompt := &survey.Input{
		Message: "Choose a player name:",
	}
	err := survey.AskOne(prompt, &name)
	if err != nil {
		fmt.Println("Failed to retrieve your choice: " + err.Error())
	}
	return name
}

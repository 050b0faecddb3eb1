package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/manifoldco/promptui"
)

// ConfirmPrompt asks a yes/no confirmation question
func ConfirmPrompt(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, fmt.Errorf("operation cancelled by user")
		}
		return false, err
	}

	// promptui returns "y" for yes
	return result == "y", nil
}

// InputPrompt asks for text input with optional validation
func InputPrompt(label string, defaultValue string, validate func(string) error) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Default:  defaultValue,
		Validate: validate,
	}

	result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return "", fmt.Errorf("input cancelled by user")
		}
		return "", err
	}

	return result, nil
}

// CandidateOption is one installation in a selection prompt
type CandidateOption struct {
	Folder  string
	Quality string
	Score   int
	Detail  string
}

// SelectCandidate presents discovered installations and returns the chosen index.
// Typing filters the list by folder path.
func SelectCandidate(label string, options []CandidateOption) (int, error) {
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}?",
		Active:   "▸ {{ .Folder | cyan }} ({{ .Quality }}, score {{ .Score }})",
		Inactive: "  {{ .Folder | faint }} ({{ .Quality | faint }})",
		Selected: "▸ {{ .Folder | green }}",
		Details:  "{{ .Detail | faint }}",
	}

	prompt := promptui.Select{
		Label:     label,
		Items:     options,
		Templates: templates,
		Size:      min(10, len(options)),
		Searcher: func(input string, index int) bool {
			if index < 0 || index >= len(options) {
				return false
			}
			if input == "" {
				return true
			}
			return fuzzy.MatchNormalizedFold(strings.TrimSpace(input), options[index].Folder)
		},
	}

	index, _, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return -1, fmt.Errorf("selection cancelled by user")
		}
		return -1, err
	}

	return index, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ValidateNonEmpty validates that input is not empty
func ValidateNonEmpty(input string) error {
	if len(input) == 0 {
		return errors.New("input cannot be empty")
	}
	return nil
}

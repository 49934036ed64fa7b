// Package cli holds interactive terminal prompts.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Confirm asks a yes/no question with the given default.
// Returns true for yes, false for no.
func Confirm(in io.Reader, out io.Writer, prompt string, defaultYes bool) (bool, error) {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}

	fmt.Fprintf(out, "%s %s ", prompt, suffix)

	response, err := readLine(in)
	if err != nil {
		return false, err
	}
	if response == "" {
		return defaultYes, nil
	}
	return response == "y" || response == "yes", nil
}

// SelectOption represents an option in a selection list.
type SelectOption struct {
	Value string // The value to return if selected
	Label string // The display label
}

// Select displays a numbered list and asks the user to select an option.
// Returns the selected option's Value, or empty string if cancelled.
func Select(in io.Reader, out io.Writer, prompt string, options []SelectOption) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("no options provided")
	}

	fmt.Fprintln(out, prompt)
	fmt.Fprintln(out)
	for i, opt := range options {
		fmt.Fprintf(out, "  %d) %s\n", i+1, opt.Label)
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, "Enter number (or 'q' to cancel): ")

	response, err := readLine(in)
	if err != nil {
		return "", err
	}
	if response == "" || response == "q" || response == "quit" || response == "cancel" {
		return "", nil
	}

	num, err := strconv.Atoi(response)
	if err != nil || num < 1 || num > len(options) {
		return "", fmt.Errorf("invalid selection: %s", response)
	}
	return options[num-1].Value, nil
}

func readLine(in io.Reader) (string, error) {
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && (err != io.EOF || response == "") {
		return "", fmt.Errorf("reading response: %w", err)
	}
	return strings.TrimSpace(strings.ToLower(response)), nil
}

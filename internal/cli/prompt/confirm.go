// Package prompt provides interactive confirmation before destructive runs.
package prompt

import (
	"errors"
	"fmt"
	"io"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

// ConfirmDanger asks the user to type confirmWord before a destructive
// operation proceeds. Returns false without error when the user declines.
func ConfirmDanger(label, confirmWord string, stdin io.ReadCloser, stdout io.WriteCloser) (bool, error) {
	p := promptui.Prompt{
		Label: fmt.Sprintf("%s (type '%s' to confirm)", label, confirmWord),
		Validate: func(input string) error {
			if input != confirmWord {
				return fmt.Errorf("type '%s' to confirm", confirmWord)
			}
			return nil
		},
		Stdin:  stdin,
		Stdout: stdout,
	}

	result, err := p.Run()
	switch {
	case errors.Is(err, promptui.ErrInterrupt), errors.Is(err, promptui.ErrEOF):
		return false, ErrAborted
	case errors.Is(err, promptui.ErrAbort):
		return false, nil
	case err != nil:
		return false, err
	}
	return result == confirmWord, nil
}

// ConfirmWithForce returns true immediately if force is set, otherwise
// prompts via ConfirmDanger.
func ConfirmWithForce(label, confirmWord string, force bool, stdin io.ReadCloser, stdout io.WriteCloser) (bool, error) {
	if force {
		return true, nil
	}
	return ConfirmDanger(label, confirmWord, stdin, stdout)
}

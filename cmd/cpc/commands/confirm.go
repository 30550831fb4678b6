package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// confirm prompts on stderr and reads a yes/no answer from stdin. Swapped
// out in tests.
var confirm = func(prompt string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

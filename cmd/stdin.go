package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
)

func readAllStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("empty prompt on stdin")
	}
	return text, nil
}

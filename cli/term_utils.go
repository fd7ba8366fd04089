package cli

import (
	"fmt"
	"os"

	"github.com/ije/gox/term"
	xterm "golang.org/x/term"
)

const (
	keyCtrlC     = 3
	keyBackspace = 8
	keyEnter     = 13
	keyCtrlN     = 14
	keyCtrlP     = 16
	keyEscape    = 27
	keySpace     = 32
	keyUp        = 65
	keyDown      = 66
	keyDelete    = 127
)

// isTTY reports whether the standard input is a terminal.
func isTTY() bool {
	return xterm.IsTerminal(int(os.Stdin.Fd()))
}

func printPrompt(prompt string) {
	fmt.Print(term.Cyan("? "))
	fmt.Print(prompt + " ")
}

func printAnswer(prompt string, answer string) {
	fmt.Print("\r")
	fmt.Print(term.Green("✔ "))
	fmt.Print(prompt + " ")
	fmt.Print(term.Dim(answer))
	fmt.Print("\n")
}

func abort() {
	fmt.Print("\n")
	fmt.Print(term.Dim("Aborted."))
	fmt.Print("\n")
	term.ShowCursor()
	os.Exit(0)
}

func termConfirm(prompt string) (value bool) {
	printPrompt(prompt)
	fmt.Print(term.Dim("(y/N)"))
	defer func() {
		term.ClearLine()
		printAnswer(prompt, map[bool]string{true: "yes", false: "no"}[value])
	}()
	for {
		switch key := getRawInput(); key {
		case keyCtrlC, keyEscape:
			abort()
		case keyEnter, keySpace, 'n', 'N':
			return false
		case 'y', 'Y':
			return true
		}
	}
}

// termInput reads a name made of lowercase letters, digits and `-`.
func termInput(prompt string, defaultValue string) string {
	printPrompt(prompt)
	fmt.Print(term.Dim(defaultValue))
	buf := []byte{}
	for {
		switch key := getRawInput(); {
		case key == keyCtrlC || key == keyEscape:
			abort()
		case key == keyEnter:
			value := string(buf)
			if value == "" {
				value = defaultValue
			}
			term.ClearLine()
			printAnswer(prompt, value)
			return value
		case key == keyDelete || key == keyBackspace:
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
			}
			term.ClearLine()
			fmt.Print("\r")
			printPrompt(prompt)
			if len(buf) == 0 {
				fmt.Print(term.Dim(defaultValue))
			} else {
				fmt.Print(string(buf))
			}
		case (key >= 'a' && key <= 'z') || (key >= '0' && key <= '9') || key == '-':
			if len(buf) == 0 {
				term.ClearLine()
				fmt.Print("\r")
				printPrompt(prompt)
			}
			buf = append(buf, key)
			fmt.Print(string(key))
		}
	}
}

func termSelect(prompt string, items []string) (selected string) {
	printPrompt(prompt)
	fmt.Print("\n")

	term.HideCursor()
	defer term.ShowCursor()

	current := 0
	printSelectItems(items, current)
	for {
		switch key := getRawInput(); key {
		case keyCtrlC, keyEscape:
			abort()
		case keyEnter, keySpace:
			selected = items[current]
			term.MoveCursorUp(len(items) + 1)
			printAnswer(prompt, selected)
			for range items {
				term.ClearLine()
				fmt.Print("\n")
			}
			term.MoveCursorUp(len(items))
			return
		case keyUp, keyCtrlP, 'k':
			if current > 0 {
				current--
				term.MoveCursorUp(len(items))
				printSelectItems(items, current)
			}
		case keyDown, keyCtrlN, 'j':
			if current < len(items)-1 {
				current++
				term.MoveCursorUp(len(items))
				printSelectItems(items, current)
			}
		}
	}
}

func printSelectItems(items []string, selected int) {
	for i, name := range items {
		if i == selected {
			fmt.Println("\r> ", name)
		} else {
			fmt.Println("\r  ", term.Dim(name))
		}
	}
}

// getRawInput reads a key from the terminal in raw mode. For the escape sequences of
// the arrow keys the last byte is returned.
func getRawInput() byte {
	fd := int(os.Stdin.Fd())
	oldState, err := xterm.MakeRaw(fd)
	if err != nil {
		panic(err)
	}
	defer xterm.Restore(fd, oldState)

	buf := make([]byte, 3)
	n, err := os.Stdin.Read(buf)
	if err != nil {
		panic(err)
	}
	if n == 3 {
		return buf[2]
	}
	return buf[0]
}

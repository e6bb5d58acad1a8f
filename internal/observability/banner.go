package observability

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
	colorNeonYel  = "\033[93m"
)

var spinnerFrames = []string{"◜", "◝", "◞", "◟"}
var spinnerIdx = 0

// termMu synchronizes ALL terminal output so that the cursor
// save/restore in PrintLiveStatus can never be interrupted by a log write.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is attached to a terminal. The banner
// and live status are skipped otherwise.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
// It serialises writes with PrintLiveStatus via termMu.
func NewTermWriter() *termWriter {
	return &termWriter{}
}

func PrintBanner(listen string) {
	fmt.Print("\033[2J\033[H")

	banner := `
 _   _ ___ ____  _____
| | | |_ _| __ )| ____|
| | | || ||  _ \|  _|
| |_| || || |_) | |___
 \___/|___|____/|_____|

   >> PROMPT. PLAN. PREVIEW. <<
`

	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
	fmt.Printf("%slistening on %s%s\n", colorPurple, listen, colorReset)
}

func InitializeTerminal() {
	// Lines 1-10 hold the banner, 11 the status line, logs scroll from 13.
	fmt.Print("\033[13;r")
	fmt.Print("\033[13;1H")
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

func PrintLiveStatus() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime).Round(time.Second)
	memMB := float64(m.Alloc) / 1024 / 1024

	role, task, lastHB := GetStatus()
	sessions := Sessions()

	pulse, pulseColor := "HEALTHY", colorNeonCyan
	switch delta := time.Since(lastHB); {
	case delta >= 90*time.Second:
		pulse, pulseColor = "OFFLINE", colorNeonMag
	case delta >= 40*time.Second:
		pulse, pulseColor = "LAGGING", colorPurple
	}

	roleColor := colorReset
	switch role {
	case RolePlanning:
		roleColor = colorNeonCyan
	case RoleBuilding:
		roleColor = colorNeonMag
	case RoleServing:
		roleColor = colorNeonYel
	}

	spin := " "
	if role != RoleIdle {
		spin = spinnerFrames[spinnerIdx]
		spinnerIdx = (spinnerIdx + 1) % len(spinnerFrames)
	}

	displayTask := task
	if displayTask == "" {
		displayTask = "Waiting..."
	}
	if len(displayTask) > 30 {
		displayTask = displayTask[:27] + "..."
	}

	statusStr := fmt.Sprintf(
		"\033[s\033[11;1H\033[K%s[%s] %s%-7s%s | %s%-8s%s %s [%s] sessions=%d [%v] [%.1fMB]\033[u",
		colorReset,
		lastHB.Format("15:04:05"),
		pulseColor, pulse, colorReset,
		roleColor, role, colorReset,
		spin,
		displayTask,
		sessions,
		uptime,
		memMB,
	)

	termMu.Lock()
	fmt.Print(statusStr)
	termMu.Unlock()
}

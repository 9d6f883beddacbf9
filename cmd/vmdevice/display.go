package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/benmeehan/vmdevice-agent/internal/models"
	"github.com/benmeehan/vmdevice-agent/internal/services"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	statusStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

var listTitles = map[models.ListKind]string{
	models.ListAttached:  "Attached Devices",
	models.ListAvailable: "Available Devices",
}

// terminalDisplay renders coordinator updates on a terminal. In watch mode a
// list is printed in full once and afterwards only its changes.
type terminalDisplay struct {
	out    io.Writer
	errOut io.Writer
	stdin  *os.File
	reader *bufio.Reader
	watch  bool
	shown  map[models.ListKind]bool

	stateMu sync.Mutex
	saved   *term.State // terminal state while a password read is open
}

func newTerminalDisplay(watch bool) *terminalDisplay {
	return &terminalDisplay{
		out:    os.Stdout,
		errOut: os.Stderr,
		stdin:  os.Stdin,
		reader: bufio.NewReader(os.Stdin),
		watch:  watch,
		shown:  make(map[models.ListKind]bool),
	}
}

func (d *terminalDisplay) ShowStatus(message string) {
	fmt.Fprintln(d.errOut, statusStyle.Render(message))
}

func (d *terminalDisplay) ShowDevices(update services.DeviceUpdate) {
	if d.watch && d.shown[update.Kind] {
		for _, dev := range update.Added {
			fmt.Fprintln(d.out, addedStyle.Render(fmt.Sprintf("+ %s: %s", listTitles[update.Kind], deviceLabel(dev))))
		}
		for _, dev := range update.Removed {
			fmt.Fprintln(d.out, removedStyle.Render(fmt.Sprintf("- %s: %s", listTitles[update.Kind], deviceLabel(dev))))
		}
		return
	}
	d.shown[update.Kind] = true

	fmt.Fprintln(d.out, titleStyle.Render(listTitles[update.Kind]))
	fmt.Fprintln(d.out, renderDevices(update.Devices))
}

// PromptCredential reads a sudo password with echo disabled. Without a
// terminal a single line is read from stdin.
func (d *terminalDisplay) PromptCredential(host string, reason services.PromptReason) (string, bool) {
	if reason == services.PromptCredentialWrong {
		fmt.Fprintln(d.errOut, errorStyle.Render(reason.String()))
	}
	fmt.Fprintf(d.errOut, "[%s] %s ", host, services.PromptCredentialMissing)

	fd := int(d.stdin.Fd())
	if term.IsTerminal(fd) {
		if state, err := term.GetState(fd); err == nil {
			d.setSaved(state)
			defer d.setSaved(nil)
		}
		password, err := term.ReadPassword(fd)
		fmt.Fprintln(d.errOut)
		if err != nil || len(password) == 0 {
			return "", false
		}
		return string(password), true
	}

	line, err := d.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	line = strings.TrimRight(line, "\r\n")
	return line, line != ""
}

func (d *terminalDisplay) setSaved(state *term.State) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.saved = state
}

// Restore turns echo back on when the process exits while a password read is
// still open.
func (d *terminalDisplay) Restore() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.saved == nil {
		return
	}
	if err := term.Restore(int(d.stdin.Fd()), d.saved); err == nil {
		fmt.Fprintln(d.errOut)
	}
	d.saved = nil
}

func renderDevices(devices []models.DeviceDescriptor) string {
	if len(devices) == 0 {
		return statusStyle.Render("  (none)")
	}
	rows := make([][]string, 0, len(devices))
	for _, dev := range devices {
		rows = append(rows, []string{dev.Vendor, dev.Product, dev.Name, dev.Status})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Vendor", "Product", "Name", "Status").
		Rows(rows...).
		String()
}

func deviceLabel(dev models.DeviceDescriptor) string {
	return fmt.Sprintf("%s (%s:%s)", dev.Name, dev.Vendor, dev.Product)
}

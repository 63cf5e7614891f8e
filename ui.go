package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"remote-cover-controller/internal/bridge"
	"remote-cover-controller/internal/link"
	"remote-cover-controller/internal/transcript"
)

const maxLines = 10000

var sentNotes = map[link.Command]string{
	link.CommandOpen:     "App sent open command.",
	link.CommandClose:    "App sent close command.",
	link.CommandPing:     "App sent ping test command.",
	link.CommandGetState: "App sent get state command.",
}

// AppUI holds all UI state and widgets.
type AppUI struct {
	window fyne.Window
	reader *link.Reader
	hub    *bridge.Hub // nil when the bridge is disabled

	// Widgets
	portSelect    *widget.SelectEntry
	refreshBtn    *widget.Button
	connectBtn    *widget.Button
	autoscrollChk *widget.Check
	timestampChk  *widget.Check
	output        *widget.List

	// State
	mu            sync.Mutex
	entries       []transcript.Entry
	displayLines  []string
	autoscroll    bool
	showTimestamp bool
	connected     atomic.Bool
}

func NewAppUI(window fyne.Window, reader *link.Reader, hub *bridge.Hub, defaultPort string) *AppUI {
	ui := &AppUI{
		window:     window,
		reader:     reader,
		hub:        hub,
		autoscroll: true,
	}
	ui.build(defaultPort)
	if hub != nil {
		hub.SetOnSend(func(cmd link.Command, err error) {
			fyne.Do(func() { ui.recordSend(cmd, err, "bridge") })
		})
	}
	return ui
}

func (ui *AppUI) build(defaultPort string) {
	caption := widget.NewLabel("Remote controller for telescope cover using DarkSkyGeek Switch.")

	// Port selection
	ui.portSelect = widget.NewSelectEntry(nil)
	ui.portSelect.PlaceHolder = "Select serial port"
	ui.refreshBtn = widget.NewButton("Refresh", func() {
		ui.refreshPorts(strings.TrimSpace(ui.portSelect.Text))
	})
	ui.refreshPorts(defaultPort)

	ui.connectBtn = widget.NewButton("Connect", func() {
		ui.toggleConnection()
	})

	// Cover commands
	openBtn := widget.NewButton("Open Cover", func() { ui.send(link.CommandOpen) })
	openBtn.Importance = widget.DangerImportance
	closeBtn := widget.NewButton("Close Cover", func() { ui.send(link.CommandClose) })
	closeBtn.Importance = widget.DangerImportance

	clearBtn := widget.NewButton("Clear Messages", func() {
		ui.mu.Lock()
		ui.entries = nil
		ui.displayLines = nil
		ui.mu.Unlock()
		ui.output.Refresh()
	})
	pingBtn := widget.NewButton("Test Ping", func() { ui.send(link.CommandPing) })
	stateBtn := widget.NewButton("Get State", func() { ui.send(link.CommandGetState) })
	exportBtn := widget.NewButton("Export CSV", func() {
		ui.showExportDialog()
	})

	ui.autoscrollChk = widget.NewCheck("Autoscroll", func(checked bool) {
		ui.mu.Lock()
		ui.autoscroll = checked
		ui.mu.Unlock()
	})
	ui.autoscrollChk.SetChecked(true)

	ui.timestampChk = widget.NewCheck("Timestamps", func(checked bool) {
		ui.mu.Lock()
		ui.showTimestamp = checked
		ui.rebuildDisplayLines()
		ui.mu.Unlock()
		ui.output.Refresh()
	})

	// Output list — copy the display text outside the lock to avoid deadlock
	// with Fyne's internal re-entrant calls.
	ui.output = widget.NewList(
		func() int {
			ui.mu.Lock()
			defer ui.mu.Unlock()
			return len(ui.displayLines)
		},
		func() fyne.CanvasObject {
			label := widget.NewLabel("")
			label.TextStyle = fyne.TextStyle{Monospace: true}
			return label
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			ui.mu.Lock()
			var text string
			if id < len(ui.displayLines) {
				text = ui.displayLines[id]
			}
			ui.mu.Unlock()
			obj.(*widget.Label).SetText(text)
		},
	)

	// Layout
	portRow := container.NewBorder(nil, nil, widget.NewLabel("Port:"),
		container.NewHBox(ui.refreshBtn, ui.connectBtn), ui.portSelect)
	coverRow := container.NewGridWithColumns(2, openBtn, closeBtn)
	optionsRow := container.NewHBox(
		ui.autoscrollChk,
		ui.timestampChk,
		layout.NewSpacer(),
		exportBtn,
	)
	bottomRow := container.NewGridWithColumns(3, clearBtn, pingBtn, stateBtn)

	top := container.NewVBox(caption, portRow, coverRow, widget.NewLabel("Serial port messages"))
	bottom := container.NewVBox(optionsRow, bottomRow)
	ui.window.SetContent(container.NewBorder(top, bottom, nil, nil, ui.output))
}

// refreshPorts lists detected ports, keeping preferred selected even when
// the enumerator does not report it.
func (ui *AppUI) refreshPorts(preferred string) {
	ports := link.AvailablePorts()
	if preferred != "" && !contains(ports, preferred) {
		ports = append([]string{preferred}, ports...)
	}
	ui.portSelect.SetOptions(ports)
	if preferred != "" {
		ui.portSelect.SetText(preferred)
	} else if len(ports) > 0 {
		ui.portSelect.SetText(ports[0])
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (ui *AppUI) setDisconnectedState() {
	ui.connected.Store(false)
	ui.connectBtn.SetText("Connect")
	ui.portSelect.Enable()
	ui.refreshBtn.Enable()
}

func (ui *AppUI) setConnectedState() {
	ui.connected.Store(true)
	ui.connectBtn.SetText("Disconnect")
	ui.portSelect.Disable()
	ui.refreshBtn.Disable()
}

func (ui *AppUI) toggleConnection() {
	if ui.connected.Load() {
		ui.Disconnect()
		return
	}

	portName := strings.TrimSpace(ui.portSelect.Text)
	if portName == "" {
		dialog.ShowError(fmt.Errorf("no serial port selected"), ui.window)
		return
	}
	ui.Connect(portName)
}

// Connect starts the serial reader on portName and begins relaying lines.
func (ui *AppUI) Connect(portName string) {
	lines, err := ui.reader.Start(portName)
	if err != nil {
		ui.appendEntry(transcript.Info, err.Error(), time.Now())
		dialog.ShowError(fmt.Errorf("failed to connect: %w", err), ui.window)
		return
	}

	ui.portSelect.SetText(portName)
	ui.setConnectedState()
	go ui.consumeSerial(lines)
}

// Disconnect stops the reader and waits for its loop to exit.
func (ui *AppUI) Disconnect() {
	if err := ui.reader.Stop(); err != nil {
		log.Warn().Err(err).Msg("closing serial port")
	}
	ui.setDisconnectedState()
}

func (ui *AppUI) send(cmd link.Command) {
	ui.recordSend(cmd, ui.reader.Send(cmd), "")
}

// recordSend logs an outbound command. via names a source other than the
// window, such as the bridge.
func (ui *AppUI) recordSend(cmd link.Command, err error, via string) {
	note := sentNotes[cmd]
	if via != "" {
		note = fmt.Sprintf("%s (via %s)", note, via)
	}
	ui.appendEntry(transcript.Sent, note, time.Now())
	if err != nil {
		log.Warn().Err(err).Str("command", cmd.Name()).Msg("command not delivered")
		ui.appendEntry(transcript.Info, err.Error(), time.Now())
	}
}

func (ui *AppUI) consumeSerial(lines <-chan link.Line) {
	for line := range lines {
		fyne.Do(func() {
			ui.appendEntry(transcript.Received, line.Text, line.Timestamp)
		})
		if ui.hub != nil {
			ui.hub.Broadcast(line)
		}
	}

	// Channel closed — check if there was an error
	err := ui.reader.Err()
	if ui.hub != nil {
		if err != nil {
			ui.hub.Notify(err.Error())
		} else {
			ui.hub.Notify("serial port closed")
		}
	}
	if err == nil {
		// Clean shutdown (user disconnected)
		return
	}
	fyne.Do(func() {
		ui.appendEntry(transcript.Info, err.Error(), time.Now())
		ui.setDisconnectedState()
		dialog.ShowError(fmt.Errorf("serial port error: %w", err), ui.window)
	})
}

// appendEntry records an entry and refreshes the list. Must run on the UI
// goroutine; background callers go through fyne.Do.
func (ui *AppUI) appendEntry(dir transcript.Direction, text string, ts time.Time) {
	e := transcript.Entry{Timestamp: ts, Direction: dir, Text: text}

	ui.mu.Lock()
	ui.entries = append(ui.entries, e)

	// Bound memory
	if len(ui.entries) > maxLines {
		ui.entries = ui.entries[len(ui.entries)-maxLines:]
	}

	ui.displayLines = append(ui.displayLines, ui.formatEntry(e))
	if len(ui.displayLines) > maxLines {
		ui.displayLines = ui.displayLines[len(ui.displayLines)-maxLines:]
	}

	shouldScroll := ui.autoscroll
	count := len(ui.displayLines)
	ui.mu.Unlock()

	ui.output.Refresh()
	if shouldScroll && count > 0 {
		ui.output.ScrollToBottom()
	}
}

func (ui *AppUI) formatEntry(e transcript.Entry) string {
	if ui.showTimestamp {
		return fmt.Sprintf("[%s] %s", e.Timestamp.Format("15:04:05.000"), e.Text)
	}
	return e.Text
}

// rebuildDisplayLines regenerates all display strings (called when timestamp toggle changes).
// Must be called with ui.mu held.
func (ui *AppUI) rebuildDisplayLines() {
	ui.displayLines = make([]string, len(ui.entries))
	for i, e := range ui.entries {
		ui.displayLines[i] = ui.formatEntry(e)
	}
}

func (ui *AppUI) showExportDialog() {
	ui.mu.Lock()
	count := len(ui.entries)
	ui.mu.Unlock()

	if count == 0 {
		dialog.ShowInformation("Export", "No messages to export.", ui.window)
		return
	}

	includeTimestamps := widget.NewCheck("Include timestamps", nil)
	includeTimestamps.SetChecked(true)
	filterByTime := widget.NewCheck("Filter by time range", nil)

	startEntry := widget.NewEntry()
	startEntry.SetPlaceHolder("Start (HH:MM:SS)")
	startEntry.Disable()

	endEntry := widget.NewEntry()
	endEntry.SetPlaceHolder("End (HH:MM:SS)")
	endEntry.Disable()

	filterByTime.OnChanged = func(checked bool) {
		if checked {
			startEntry.Enable()
			endEntry.Enable()
		} else {
			startEntry.Disable()
			endEntry.Disable()
		}
	}

	form := widget.NewForm(
		widget.NewFormItem("Timestamps", includeTimestamps),
		widget.NewFormItem("Time Filter", filterByTime),
		widget.NewFormItem("Start", startEntry),
		widget.NewFormItem("End", endEntry),
	)

	dialog.ShowCustomConfirm("Export CSV Options", "Export", "Cancel", form, func(confirmed bool) {
		if !confirmed {
			return
		}

		opts := transcript.ExportOptions{
			IncludeTimestamps: includeTimestamps.Checked,
			FilterByTime:      filterByTime.Checked,
		}

		if filterByTime.Checked {
			now := time.Now()
			if text := strings.TrimSpace(startEntry.Text); text != "" {
				t, err := transcript.ParseClock(text, now)
				if err != nil {
					dialog.ShowError(err, ui.window)
					return
				}
				opts.StartTime = t
			}
			if text := strings.TrimSpace(endEntry.Text); text != "" {
				t, err := transcript.ParseClock(text, now)
				if err != nil {
					dialog.ShowError(err, ui.window)
					return
				}
				opts.EndTime = t
			} else {
				// No end time specified — include everything up to now
				opts.EndTime = now
			}
		}

		fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
			if err != nil || writer == nil {
				return
			}
			writer.Close()

			savePath := writer.URI().Path()
			if len(savePath) > 2 && savePath[0] == '/' && savePath[2] == ':' {
				savePath = savePath[1:]
			}
			opts.FilePath = savePath

			ui.mu.Lock()
			entries := make([]transcript.Entry, len(ui.entries))
			copy(entries, ui.entries)
			ui.mu.Unlock()

			n, err := transcript.Export(entries, opts)
			if err != nil {
				dialog.ShowError(err, ui.window)
				return
			}
			dialog.ShowInformation("Export", fmt.Sprintf("Exported %d messages to CSV.", n), ui.window)
		}, ui.window)
		fd.SetFileName("cover_messages.csv")
		fd.Show()
	}, ui.window)
}

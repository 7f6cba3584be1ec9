package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gpestana/polkadot-sdk/executor"
	"github.com/gpestana/polkadot-sdk/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#E6007A")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	ctxStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#E6007A"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputPayload
	stateShowResult
)

type interactiveModel struct {
	err      error
	opts     runOptions
	engine   string
	module   executor.Module
	instance *executor.Instance
	funcs    []string
	input    textinput.Model
	result   string
	stats    *executor.AllocationStats
	callCtx  executor.CallContext
	selected int
	state    modelState
}

func newInteractiveModel(opts runOptions) *interactiveModel {
	return &interactiveModel{opts: opts, state: stateSelectFunc}
}

type loadedMsg struct {
	err      error
	engine   string
	callCtx  executor.CallContext
	module   executor.Module
	instance *executor.Instance
	funcs    []string
}

type callResultMsg struct {
	err    error
	result string
	stats  *executor.AllocationStats
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	ctx := context.Background()

	code, err := os.ReadFile(m.opts.wasmFile)
	if err != nil {
		return loadedMsg{err: err}
	}
	info, err := wasm.Inspect(code)
	if err != nil {
		return loadedMsg{err: err}
	}

	engine, callCtx, modCfg, err := m.opts.resolve()
	if err != nil {
		return loadedMsg{err: err}
	}
	mod, err := executor.NewModule(ctx, engine, code, modCfg)
	if err != nil {
		return loadedMsg{err: err}
	}
	inst, err := mod.NewInstance(ctx)
	if err != nil {
		mod.Close(ctx)
		return loadedMsg{err: err}
	}

	return loadedMsg{
		engine:   engine,
		callCtx:  callCtx,
		module:   mod,
		instance: inst,
		funcs:    info.ExportedFunctions(),
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputPayload && msg.String() == "q" {
				break
			}
			ctx := context.Background()
			if m.instance != nil {
				m.instance.Close(ctx)
			}
			if m.module != nil {
				m.module.Close(ctx)
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "tab":
			if m.state != stateShowResult {
				if m.callCtx == executor.Onchain {
					m.callCtx = executor.Offchain
				} else {
					m.callCtx = executor.Onchain
				}
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				m.prepareInput()
				m.state = stateInputPayload
			case stateInputPayload:
				return m, m.callFunction
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.stats = nil
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateInputPayload:
				m.state = stateSelectFunc
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.stats = nil
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.engine = msg.engine
		m.callCtx = msg.callCtx
		m.module = msg.module
		m.instance = msg.instance
		m.funcs = msg.funcs

	case callResultMsg:
		m.result = msg.result
		m.stats = msg.stats
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputPayload {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) prepareInput() {
	ti := textinput.New()
	ti.Placeholder = "hex payload, empty for none"
	ti.Prompt = "input: "
	ti.Width = 60
	ti.Focus()
	m.input = ti
}

func (m *interactiveModel) callFunction() tea.Msg {
	ctx := context.Background()

	data, err := decodeHexInput(m.input.Value())
	if err != nil {
		return callResultMsg{err: err}
	}

	method := m.funcs[m.selected]
	if m.instance.State() == executor.StateFaulted {
		if err := m.instance.Reset(ctx); err != nil {
			return callResultMsg{err: err}
		}
	}
	out, stats, err := m.instance.CallWithAllocationStats(ctx, method, data, m.callCtx)
	if err != nil {
		return callResultMsg{err: err}
	}

	result := "(empty)"
	if len(out) > 0 {
		result = "0x" + hex.EncodeToString(out)
	}
	return callResultMsg{result: result, stats: stats}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.funcs) == 0 {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Wasm Executor"))
	b.WriteString(" ")
	b.WriteString(m.opts.wasmFile)
	b.WriteString("  ")
	b.WriteString(ctxStyle.Render(fmt.Sprintf("[%s, %s]", m.engine, m.callCtx)))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select an entry point to call:\n\n")
		for i, f := range m.funcs {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + f))
			} else {
				b.WriteString(cursor + funcStyle.Render(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • tab context • q quit"))

	case stateInputPayload:
		b.WriteString(fmt.Sprintf("Calling %s in %s context\n\n",
			funcStyle.Render(m.funcs[m.selected]), ctxStyle.Render(m.callCtx.String())))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter call • tab context • esc back"))

	case stateShowResult:
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(m.funcs[m.selected])))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
			if m.stats != nil {
				b.WriteString("\n")
				b.WriteString(helpStyle.Render(fmt.Sprintf(
					"heap: %d bytes, %d peak, %d address space",
					m.stats.BytesAllocated, m.stats.BytesAllocatedPeak, m.stats.AddressSpaceUsed)))
			}
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func runInteractive(opts runOptions) error {
	p := tea.NewProgram(newInteractiveModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

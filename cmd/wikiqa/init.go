// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/wikiqa/internal/config"
	"github.com/sigil-dev/wikiqa/internal/embedding"
	"github.com/sigil-dev/wikiqa/internal/prompt"
	"github.com/sigil-dev/wikiqa/internal/provider"
	"github.com/sigil-dev/wikiqa/internal/secrets"
	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

const keyValidateTimeout = 15 * time.Second

// initWizardStep tracks which step of the wizard is active.
type initWizardStep int

const (
	stepGeneration         initWizardStep = iota // select generation provider
	stepGenerationKey                            // enter its API key
	stepValidateGeneration                       // validating key (spinner)
	stepEmbedding                                // select embedding provider
	stepEmbeddingKey                             // enter its API key
	stepValidateEmbedding                        // validating key (spinner)
	stepDone                                     // wizard complete
	stepError                                    // terminal error
)

// initResult holds the collected wizard configuration.
type initResult struct {
	Generation    string
	GenerationKey string
	Embedding     string
	EmbeddingKey  string
}

// --- bubbletea messages ---

type (
	validationSuccessMsg struct{ step initWizardStep }
	validationErrorMsg   struct {
		step initWizardStep
		err  error
	}
)
type configWrittenMsg struct{ path string }

// --- lipgloss styles ---

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

var generationProviders = []string{
	provider.NameGoogle,
	provider.NameOpenAI,
	provider.NameAnthropic,
}

// hash needs no key and keeps embeddings offline.
var embeddingProviders = []string{
	embedding.ProviderHash,
	embedding.ProviderGoogle,
	embedding.ProviderOpenAI,
}

// initModel is the bubbletea model for the init wizard.
type initModel struct {
	step           initWizardStep
	generationIdx  int
	embeddingIdx   int
	keyInput       textinput.Model
	spinner        spinner.Model
	result         initResult
	validationErr  string
	configPath     string
	secretStore    secrets.Store
	errFinal       error
	skipEmbedding  bool
	forceOverwrite bool
	// keyBaseURL points key validation at a local server.
	keyBaseURL string
}

func newInitModel(store secrets.Store) initModel {
	key := textinput.New()
	key.Placeholder = "paste API key here"
	key.EchoMode = textinput.EchoPassword
	key.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepGeneration,
		keyInput:    key,
		spinner:     sp,
		secretStore: store,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case validationSuccessMsg:
		return m.handleValidationSuccess(msg)

	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		switch msg.step {
		case stepValidateGeneration:
			m.step = stepGenerationKey
		case stepValidateEmbedding:
			m.step = stepEmbeddingKey
		}
		m.keyInput.Focus()
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	if m.step == stepGenerationKey || m.step == stepEmbeddingKey {
		var cmd tea.Cmd
		m.keyInput, cmd = m.keyInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepGeneration:
		return m.handleGenerationKey(msg)
	case stepEmbedding:
		return m.handleEmbeddingKey(msg)
	case stepGenerationKey, stepEmbeddingKey:
		return m.handleKeyInput(msg)
	}
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleGenerationKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.generationIdx > 0 {
			m.generationIdx--
		}
	case "down", "j":
		if m.generationIdx < len(generationProviders)-1 {
			m.generationIdx++
		}
	case "enter":
		m.result.Generation = generationProviders[m.generationIdx]
		return m.askKey(stepGenerationKey)
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleEmbeddingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.embeddingIdx > 0 {
			m.embeddingIdx--
		}
	case "down", "j":
		if m.embeddingIdx < len(embeddingProviders)-1 {
			m.embeddingIdx++
		}
	case "enter":
		return m.chooseEmbedding(embeddingProviders[m.embeddingIdx])
	case "s":
		return m.chooseEmbedding(embedding.ProviderHash)
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

// chooseEmbedding asks for a key only when the provider needs one the wizard
// does not already hold.
func (m initModel) chooseEmbedding(name string) (tea.Model, tea.Cmd) {
	m.result.Embedding = name
	switch name {
	case embedding.ProviderHash:
		m.result.EmbeddingKey = ""
	case m.result.Generation:
		m.result.EmbeddingKey = m.result.GenerationKey
	default:
		return m.askKey(stepEmbeddingKey)
	}
	return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
}

func (m initModel) askKey(step initWizardStep) (tea.Model, tea.Cmd) {
	m.step = step
	m.validationErr = ""
	m.keyInput.SetValue("")
	m.keyInput.Focus()
	return m, textinput.Blink
}

func (m initModel) handleKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.keyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.validationErr = ""
		name := m.result.Generation
		if m.step == stepGenerationKey {
			m.result.GenerationKey = key
			m.step = stepValidateGeneration
		} else {
			name = m.result.Embedding
			m.result.EmbeddingKey = key
			m.step = stepValidateEmbedding
		}
		m.keyInput.Blur()
		return m, tea.Batch(
			m.spinner.Tick,
			validateKeyCmd(m.step, provider.KeyCheck{Provider: name, Key: key, BaseURL: m.keyBaseURL}),
		)
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.keyInput, cmd = m.keyInput.Update(msg)
	return m, cmd
}

func (m initModel) handleValidationSuccess(msg validationSuccessMsg) (tea.Model, tea.Cmd) {
	switch msg.step {
	case stepValidateGeneration:
		if m.skipEmbedding {
			m.result.Embedding = embedding.ProviderHash
			return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
		}
		m.step = stepEmbedding
		m.embeddingIdx = 0
	case stepValidateEmbedding:
		return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
	}
	return m, nil
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  wikiqa Setup Wizard  ") + "\n\n")

	switch m.step {
	case stepGeneration:
		b.WriteString(promptStyle.Render("Step 1/2: Choose the answer generation provider") + "\n\n")
		writeChoices(&b, generationProviders, m.generationIdx, func(p string) string {
			return p + dimStyle.Render("  "+defaultModelForProvider(p))
		})
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepGenerationKey, stepEmbeddingKey:
		step, name := "Step 1/2: ", m.result.Generation
		if m.step == stepEmbeddingKey {
			step, name = "Step 2/2: ", m.result.Embedding
		}
		b.WriteString(promptStyle.Render(step+name+" API key") + "\n\n")
		b.WriteString(m.keyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepValidateGeneration:
		b.WriteString(m.spinner.View() + " Validating " + m.result.Generation + " API key…\n")

	case stepEmbedding:
		b.WriteString(promptStyle.Render("Step 2/2: Choose the embedding provider") + "\n\n")
		writeChoices(&b, embeddingProviders, m.embeddingIdx, func(p string) string {
			model, dim := embeddingDefaults(p)
			if model == "" {
				model = "offline"
			}
			return p + dimStyle.Render(fmt.Sprintf("  %s, %d dimensions", model, dim))
		})
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  s to skip (hash)  q to quit"))

	case stepValidateEmbedding:
		b.WriteString(m.spinner.View() + " Validating " + m.result.Embedding + " API key…\n")

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("wikiqa start") + " and " + promptStyle.Render("wikiqa load <url>") + " to get started.\n")
		b.WriteString("Run " + promptStyle.Render("wikiqa doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func writeChoices(b *strings.Builder, choices []string, selected int, label func(string) string) {
	for i, c := range choices {
		if i == selected {
			b.WriteString(selectedStyle.Render("  > ") + label(c) + "\n")
		} else {
			b.WriteString(dimStyle.Render("    ") + label(c) + "\n")
		}
	}
}

// --- tea.Cmd factories ---

func validateKeyCmd(step initWizardStep, check provider.KeyCheck) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), keyValidateTimeout)
		defer cancel()
		if err := provider.ValidateKey(ctx, keyCheckClient, check); err != nil {
			return validationErrorMsg{step: step, err: err}
		}
		return validationSuccessMsg{step: step}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, forceOverwrite bool) tea.Cmd {
	return func() tea.Msg {
		path, err := storeSecretsAndWriteConfig(result, store, forceOverwrite)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// --- Config generation ---

// GenerateConfigYAML produces a wikiqa.yaml from the wizard result. API keys
// are referenced via keyring:// URIs; the secrets themselves are stored by
// storeSecretsAndWriteConfig. Settings not written here keep their defaults.
func GenerateConfigYAML(result initResult) string {
	embedder := result.Embedding
	if embedder == "" {
		embedder = embedding.ProviderHash
	}
	embedModel, dim := embeddingDefaults(embedder)

	var sb strings.Builder
	sb.WriteString("# wikiqa configuration, generated by wikiqa init\n\n")

	sb.WriteString("networking:\n")
	sb.WriteString("  listen: \"127.0.0.1:8000\"\n\n")

	sb.WriteString("providers:\n")
	for _, name := range keyedProviders(result) {
		sb.WriteString(fmt.Sprintf("  %s:\n", name))
		sb.WriteString(fmt.Sprintf("    api_key: \"%s\"\n", secrets.URI(secrets.DefaultService, secrets.ProviderKey(name))))
	}
	sb.WriteString("\n")

	sb.WriteString("embedding:\n")
	sb.WriteString(fmt.Sprintf("  provider: %s\n", embedder))
	if embedModel != "" {
		sb.WriteString(fmt.Sprintf("  model: %s\n", embedModel))
	}
	sb.WriteString(fmt.Sprintf("  dimensions: %d\n\n", dim))

	sb.WriteString("generation:\n")
	sb.WriteString(fmt.Sprintf("  model: \"%s\"\n", defaultModelForProvider(result.Generation)))
	sb.WriteString("  prompt: sentence\n\n")

	sb.WriteString("index:\n")
	sb.WriteString("  backend: sqlite\n\n")

	sb.WriteString("context:\n")
	sb.WriteString("  max_tokens: 512\n")
	sb.WriteString(fmt.Sprintf("  tokenizer: %s\n", prompt.TokenizerAuto))

	return sb.String()
}

// keyedProviders lists each provider the result holds a key for, generation
// first.
func keyedProviders(result initResult) []string {
	names := []string{result.Generation}
	if result.EmbeddingKey != "" && result.Embedding != result.Generation {
		names = append(names, result.Embedding)
	}
	return names
}

// defaultModelForProvider returns a sensible default generation model for a
// provider.
func defaultModelForProvider(p string) string {
	switch p {
	case provider.NameGoogle:
		return "google/gemini-2.5-flash"
	case provider.NameOpenAI:
		return "openai/gpt-4.1-mini"
	case provider.NameAnthropic:
		return "anthropic/claude-haiku-4-5"
	default:
		return p + "/default"
	}
}

// embeddingDefaults returns the model and vector size written for an
// embedding provider.
func embeddingDefaults(p string) (model string, dimensions int) {
	switch p {
	case embedding.ProviderGoogle:
		return "gemini-embedding-001", 768
	case embedding.ProviderOpenAI:
		return "text-embedding-3-small", 1536
	default:
		return "", 384
	}
}

// storeSecretsAndWriteConfig saves API keys to the secret store and writes
// the config YAML to the default config path.
//
// An existing config is only replaced with forceOverwrite, unless it is the
// untouched default that startup bootstraps.
func storeSecretsAndWriteConfig(result initResult, store secrets.Store, forceOverwrite bool) (string, error) {
	keys := map[string]string{result.Generation: result.GenerationKey}
	if result.EmbeddingKey != "" {
		keys[result.Embedding] = result.EmbeddingKey
	}

	// Keys already stored are not rolled back if the config write fails; a
	// rerun overwrites them.
	for _, name := range keyedProviders(result) {
		if err := store.Store(secrets.DefaultService, secrets.ProviderKey(name), keys[name]); err != nil {
			return "", wikierr.Errorf(wikierr.CodeSecretStoreFailure, "storing %s API key: %w", name, err)
		}
	}

	cfgPath, err := configPathForWrite()
	if err != nil {
		return "", err
	}

	if !forceOverwrite {
		if data, readErr := os.ReadFile(cfgPath); readErr == nil && !bytes.Equal(data, config.DefaultConfigYAML) {
			return "", wikierr.Errorf(wikierr.CodeConfigAlreadyExists,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", wikierr.Errorf(wikierr.CodeConfigWriteFailure, "creating config directory %s: %w", dir, err)
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateConfigYAML(result)), 0o600); err != nil {
		return "", wikierr.Errorf(wikierr.CodeConfigWriteFailure, "writing config to %s: %w", cfgPath, err)
	}

	return cfgPath, nil
}

// configPathForWrite returns the path the wizard writes to. Overridden in
// tests.
var configPathForWrite = config.DefaultConfigPath

// --- Cobra command ---

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard for wikiqa",
		Long: `Run an interactive TUI wizard that walks you through:
  1. Choosing the answer generation provider (Google, OpenAI, Anthropic)
  2. Choosing the embedding provider (offline hash, Google, OpenAI)

Each API key is validated against the provider, stored in the OS keyring and
referenced via a keyring:// URI in the config file. No secrets are written
in plain text.

After completion, run:
  wikiqa start        start the server
  wikiqa load <url>   index a Wikipedia article
  wikiqa doctor       verify your setup`,
		RunE: runInit,
	}

	cmd.Flags().Bool("skip-embedding", false, "Keep the offline hash embedder and skip the embedding step")
	cmd.Flags().Bool("force", false, "Overwrite existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"wikiqa init requires an interactive terminal.\n"+
				"To configure wikiqa non-interactively, edit ~/.config/wikiqa/wikiqa.yaml and use `wikiqa secret set`.")
		return wikierr.New(wikierr.CodeCLISetupFailure, "wikiqa init: not an interactive terminal")
	}

	skipEmbedding, _ := cmd.Flags().GetBool("skip-embedding")
	forceOverwrite, _ := cmd.Flags().GetBool("force")

	m := newInitModel(secretStoreFactory())
	m.skipEmbedding = skipEmbedding
	m.forceOverwrite = forceOverwrite

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithInput(f), tea.WithOutput(cmd.OutOrStdout()))
	finalModel, err := p.Run()
	if err != nil {
		return wikierr.Errorf(wikierr.CodeCLISetupFailure, "init wizard error: %w", err)
	}

	fm, ok := finalModel.(initModel)
	if !ok {
		return wikierr.New(wikierr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return wikierr.Reclassify(fm.errFinal, wikierr.CodeCLISetupFailure, "init failed")
	}
	if fm.step == stepDone {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", fm.configPath)
	}
	return nil
}

// isTerminal reports whether f is a terminal file descriptor.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

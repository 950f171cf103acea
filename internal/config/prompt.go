package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PromptConfig prompt configuration structure
type PromptConfig struct {
	Language string                     `yaml:"language"`
	Prompts  map[string]LanguagePrompts `yaml:"prompts"`
}

// LanguagePrompts prompts and canned replies for a specific language
type LanguagePrompts struct {
	System          string `yaml:"system"`
	ChatContext     string `yaml:"chat_context"`
	Apology         string `yaml:"apology"`
	ClearConfirm    string `yaml:"clear_confirm"`
	ClearAllConfirm string `yaml:"clear_all_confirm"`
	Start           string `yaml:"start"`
	Help            string `yaml:"help"`
	RateLimited     string `yaml:"rate_limited"`
	Welcome         string `yaml:"welcome"` // {names} is replaced with the newcomers
}

// DefaultPromptConfig returns default prompt configuration
func DefaultPromptConfig() *PromptConfig {
	return &PromptConfig{
		Language: "uk",
		Prompts: map[string]LanguagePrompts{
			"uk": {
				System: `Ти CampusBot, помічник студентів у груповому чаті Telegram.
- Відповідай українською, якщо користувач не пише іншою мовою.
- Будь стислим і конкретним, без зайвих вступів.
- Для виділення використовуй *жирний*, _курсив_, ` + "`код`" + ` і блоки ` + "```" + `.
- Не використовуй HTML-теги.
- Якщо до повідомлення додано контекст зі сторінки, репозиторію чи пошуку, спирайся на нього і не вигадуй фактів.`,
				ChatContext:     "Останні повідомлення в цьому чаті:",
				Apology:         "Вибачте, зараз не вдалося згенерувати відповідь. Спробуйте ще раз трохи пізніше.",
				ClearConfirm:    "Історію нашої розмови очищено ✅",
				ClearAllConfirm: "Історію розмови та спільну пам'ять чату очищено ✅",
				Start:           "Вітаю! Я CampusBot. Напишіть питання, надішліть посилання або попросіть щось знайти. /help покаже, що я вмію.",
				Help: `Що я вмію:
• відповідати на питання з урахуванням нашої розмови
• аналізувати GitHub-репозиторії за посиланням
• коротко переказувати вебсторінки
• шукати в інтернеті: "знайди ..."

Команди:
/clear_memory очистити історію розмови
/clear_memory all очистити також спільну пам'ять чату`,
				RateLimited: "Забагато повідомлень поспіль. Зачекайте хвилинку 🙏",
				Welcome:     "Вітаю в чаті, {names}! Я CampusBot: згадайте мене або почніть повідомлення зі слова \"бот\", щоб поставити питання.",
			},
			"en": {
				System: `You are CampusBot, an assistant for students in a Telegram group chat.
- Answer in the language the user writes in.
- Be brief and concrete.
- Use *bold*, _italic_, ` + "`code`" + ` and ` + "```" + ` blocks for emphasis.
- Never use HTML tags.
- When page, repository or search context is attached to a message, rely on it and do not invent facts.`,
				ChatContext:     "Recent messages in this chat:",
				Apology:         "Sorry, I could not generate a reply right now. Please try again a bit later.",
				ClearConfirm:    "Our conversation history has been cleared ✅",
				ClearAllConfirm: "Conversation history and shared chat memory have been cleared ✅",
				Start:           "Hi! I am CampusBot. Ask a question, send a link or ask me to search for something. /help lists what I can do.",
				Help: `What I can do:
• answer questions, remembering our conversation
• analyze GitHub repositories from a link
• summarize web pages
• search the web: "search for ..."

Commands:
/clear_memory clear our conversation history
/clear_memory all also clear the shared chat memory`,
				RateLimited: "Too many messages in a row. Please wait a minute 🙏",
				Welcome:     "Welcome to the chat, {names}! I am CampusBot: mention me or start a message with \"bot\" to ask a question.",
			},
		},
	}
}

// PromptConfigPath returns the prompt config file path
func PromptConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prompt.yaml"), nil
}

// LoadPromptConfig loads prompt configuration from file
func LoadPromptConfig() (*PromptConfig, error) {
	configPath, err := PromptConfigPath()
	if err != nil {
		return DefaultPromptConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultPromptConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt config: %w", err)
	}

	cfg := DefaultPromptConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse prompt config: %w", err)
	}

	return cfg, nil
}

// GetPrompts returns prompts for the configured language. Fields left empty
// in a partially translated file are taken from the Ukrainian defaults.
func (p *PromptConfig) GetPrompts() LanguagePrompts {
	fallback := DefaultPromptConfig().Prompts["uk"]
	if base, ok := p.Prompts["uk"]; ok {
		fallback = fillPrompts(base, fallback)
	}
	prompts, ok := p.Prompts[p.Language]
	if !ok {
		return fallback
	}
	return fillPrompts(prompts, fallback)
}

func fillPrompts(p, fallback LanguagePrompts) LanguagePrompts {
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return LanguagePrompts{
		System:          pick(p.System, fallback.System),
		ChatContext:     pick(p.ChatContext, fallback.ChatContext),
		Apology:         pick(p.Apology, fallback.Apology),
		ClearConfirm:    pick(p.ClearConfirm, fallback.ClearConfirm),
		ClearAllConfirm: pick(p.ClearAllConfirm, fallback.ClearAllConfirm),
		Start:           pick(p.Start, fallback.Start),
		Help:            pick(p.Help, fallback.Help),
		RateLimited:     pick(p.RateLimited, fallback.RateLimited),
		Welcome:         pick(p.Welcome, fallback.Welcome),
	}
}

// GetSystemPrompt returns the system prompt for the configured language
func (p *PromptConfig) GetSystemPrompt() string {
	return p.GetPrompts().System
}

// GetApology returns the reply used when the model fails
func (p *PromptConfig) GetApology() string {
	return p.GetPrompts().Apology
}

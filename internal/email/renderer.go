package email

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownTemplate is returned for template names outside the fixed set.
	ErrUnknownTemplate = errors.New("email: unknown template")
	// ErrMissingProps is returned when required template props are absent.
	ErrMissingProps = errors.New("email: missing template props")
)

const frontMatterDelimiter = "---"

// Rendered is a fully rendered message body.
type Rendered struct {
	Subject   string
	Preheader string
	HTML      string
	Text      string
}

type frontMatter struct {
	Subject   string `yaml:"subject"`
	Preheader string `yaml:"preheader"`
}

type parsedTemplate struct {
	subject   *template.Template
	preheader *template.Template
	body      *template.Template
}

// RendererOptions configures shared template props and formatting.
type RendererOptions struct {
	StoreName string
	StoreURL  string
	Currency  string
}

// Renderer turns template names and props into sanitized HTML.
type Renderer struct {
	opts     RendererOptions
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
	funcs    template.FuncMap

	mu     sync.Mutex
	parsed map[TemplateName]parsedTemplate
}

// NewRenderer builds a renderer over the embedded templates.
func NewRenderer(opts RendererOptions) (*Renderer, error) {
	code := strings.TrimSpace(opts.Currency)
	if code == "" {
		code = "INR"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("email: invalid currency %q: %w", code, err)
	}
	printer := message.NewPrinter(language.English)
	titler := cases.Title(language.English)

	funcs := template.FuncMap{
		"title": func(value any) string {
			return titler.String(strings.ToLower(fmt.Sprint(value)))
		},
		"money": func(value any) string {
			amount, err := decimal.NewFromString(fmt.Sprint(value))
			if err != nil {
				return fmt.Sprint(value)
			}
			f, _ := amount.Round(2).Float64()
			return printer.Sprint(currency.Symbol(unit.Amount(f)))
		},
	}

	return &Renderer{
		opts:     opts,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:   bluemonday.UGCPolicy(),
		funcs:    funcs,
		parsed:   make(map[TemplateName]parsedTemplate),
	}, nil
}

// Render validates props and renders the named template.
func (r *Renderer) Render(name TemplateName, props map[string]any) (Rendered, error) {
	if !name.Valid() {
		return Rendered{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	var missing []string
	for _, key := range requiredProps[name] {
		if value, ok := props[key]; !ok || value == nil || fmt.Sprint(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Rendered{}, fmt.Errorf("%w: %s requires %s", ErrMissingProps, name, strings.Join(missing, ", "))
	}

	tmpl, err := r.load(name)
	if err != nil {
		return Rendered{}, err
	}

	data := make(map[string]any, len(props)+2)
	data["storeName"] = r.opts.StoreName
	data["storeURL"] = r.opts.StoreURL
	for k, v := range props {
		data[k] = v
	}

	subject, err := execute(tmpl.subject, data)
	if err != nil {
		return Rendered{}, err
	}
	preheader, err := execute(tmpl.preheader, data)
	if err != nil {
		return Rendered{}, err
	}
	body, err := execute(tmpl.body, data)
	if err != nil {
		return Rendered{}, err
	}

	var html bytes.Buffer
	if err := r.markdown.Convert([]byte(body), &html); err != nil {
		return Rendered{}, fmt.Errorf("email: render markdown %s: %w", name, err)
	}

	return Rendered{
		Subject:   strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(subject)),
		Preheader: strings.TrimSpace(preheader),
		HTML:      r.policy.Sanitize(html.String()),
		Text:      strings.TrimSpace(body),
	}, nil
}

func (r *Renderer) load(name TemplateName) (parsedTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tmpl, ok := r.parsed[name]; ok {
		return tmpl, nil
	}

	raw, err := templateFS.ReadFile(templatePath(name))
	if err != nil {
		return parsedTemplate{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	meta, body, err := splitFrontMatter(string(raw))
	if err != nil {
		return parsedTemplate{}, fmt.Errorf("email: template %s: %w", name, err)
	}

	parse := func(part, text string) (*template.Template, error) {
		t, err := template.New(string(name) + "." + part).Funcs(r.funcs).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("email: parse template %s %s: %w", name, part, err)
		}
		return t, nil
	}
	var tmpl parsedTemplate
	if tmpl.subject, err = parse("subject", meta.Subject); err != nil {
		return parsedTemplate{}, err
	}
	if tmpl.preheader, err = parse("preheader", meta.Preheader); err != nil {
		return parsedTemplate{}, err
	}
	if tmpl.body, err = parse("body", body); err != nil {
		return parsedTemplate{}, err
	}
	r.parsed[name] = tmpl
	return tmpl, nil
}

func splitFrontMatter(raw string) (frontMatter, string, error) {
	raw = strings.TrimLeft(raw, "\ufeff\n")
	if !strings.HasPrefix(raw, frontMatterDelimiter) {
		return frontMatter{}, "", errors.New("missing front matter")
	}
	rest := strings.TrimPrefix(raw, frontMatterDelimiter)
	end := strings.Index(rest, "\n"+frontMatterDelimiter)
	if end < 0 {
		return frontMatter{}, "", errors.New("unterminated front matter")
	}
	var meta frontMatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		return frontMatter{}, "", fmt.Errorf("decode front matter: %w", err)
	}
	if strings.TrimSpace(meta.Subject) == "" {
		return frontMatter{}, "", errors.New("front matter subject is required")
	}
	body := strings.TrimPrefix(rest[end+1+len(frontMatterDelimiter):], "\n")
	return meta, body, nil
}

func execute(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("email: execute %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

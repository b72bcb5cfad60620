package export

import (
	"fmt"
	"html"
	"html/template"
	"strings"

	"communitydms/api/internal/forms"
)

// Widget renders one field. Fillable output uses real inputs; printable
// output uses blank lines and boxes to be completed by hand.
func Widget(f forms.Field, fillable bool) template.HTML {
	b := f.Common()
	name := html.EscapeString(b.Name)
	label := name
	if b.Required {
		label += ` <span class="required">*</span>`
	}

	var body string
	switch v := f.(type) {
	case forms.Text:
		body = inputWidget("text", name, v.Placeholder, fillable)
	case forms.Email:
		body = inputWidget("email", name, v.Placeholder, fillable)
	case forms.Date:
		body = inputWidget("date", name, "", fillable)
	case forms.Textarea:
		if fillable {
			body = fmt.Sprintf(`<textarea name="%s" placeholder="%s" rows="4"></textarea>`, name, html.EscapeString(v.Placeholder))
		} else {
			body = `<div class="blank blank-area"></div>`
		}
	case forms.Checkbox:
		if len(v.Options) == 0 {
			body = choice("checkbox", name, b.Name, fillable)
		} else {
			body = choiceList("checkbox", name, v.Options, fillable)
		}
	case forms.Radio:
		body = choiceList("radio", name, v.Options, fillable)
	case forms.Select:
		if fillable {
			var sb strings.Builder
			fmt.Fprintf(&sb, `<select name="%s"><option value=""></option>`, name)
			for _, o := range v.Options {
				fmt.Fprintf(&sb, `<option>%s</option>`, html.EscapeString(o))
			}
			sb.WriteString(`</select>`)
			body = sb.String()
		} else {
			body = choiceList("checkbox", name, v.Options, false)
		}
	case forms.Signature:
		body = `<div class="signature"><div class="signature-line"></div><span>Signature</span><span class="signature-date">Date</span></div>`
	default:
		body = inputWidget("text", name, "", fillable)
	}

	return template.HTML(fmt.Sprintf(`<div class="form-field form-field-%s"><label>%s</label>%s</div>`, f.Kind(), label, body))
}

func inputWidget(kind, name, placeholder string, fillable bool) string {
	if !fillable {
		return `<div class="blank"></div>`
	}
	return fmt.Sprintf(`<input type="%s" name="%s" placeholder="%s">`, kind, name, html.EscapeString(placeholder))
}

func choice(kind, name, option string, fillable bool) string {
	if fillable {
		return fmt.Sprintf(`<span class="choice"><input type="%s" name="%s" value="%s"> %s</span>`, kind, name, html.EscapeString(option), html.EscapeString(option))
	}
	return fmt.Sprintf(`<span class="choice"><span class="box"></span> %s</span>`, html.EscapeString(option))
}

func choiceList(kind, name string, options []string, fillable bool) string {
	var sb strings.Builder
	sb.WriteString(`<div class="choices">`)
	for _, o := range options {
		sb.WriteString(choice(kind, name, o, fillable))
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

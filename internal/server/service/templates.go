package service

import (
	"bytes"
	"fmt"
	"text/template"

	server "github.com/ramonsune/custodia-360-sub010/internal/server/domain"
)

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustTemplate(slug server.TemplateSlug, subject, body string) messageTemplate {
	return messageTemplate{
		subject: template.Must(template.New(string(slug) + ".subject").Option("missingkey=error").Parse(subject)),
		body:    template.Must(template.New(string(slug) + ".body").Option("missingkey=error").Parse(body)),
	}
}

var templates = map[server.TemplateSlug]messageTemplate{
	server.TemplateComplianceBlocked: mustTemplate(server.TemplateComplianceBlocked,
		`{{if eq .stage "blocked"}}Acceso bloqueado: cumplimiento pendiente{{else}}Quedan {{.days_remaining}} días para completar el cumplimiento{{end}}`,
		`Hola {{.entity_name}},
{{if eq .stage "blocked"}}
El plazo de cumplimiento venció el {{.deadline}} con pasos pospuestos sin completar.
El acceso de la entidad queda bloqueado hasta que se completen.
{{else}}
Tienes pasos de cumplimiento pospuestos. El plazo vence el {{.deadline}} ({{.days_remaining}} días).
Si no se completan, el acceso de la entidad se bloqueará.
{{end}}
Custodia360
`),
	server.TemplateOnboardingDelay: mustTemplate(server.TemplateOnboardingDelay,
		`Tu alta en Custodia360 sigue pendiente`,
		`Hola {{.entity_name}},

Quedan {{.days_remaining}} días (hasta el {{.deadline}}) para completar el alta:
{{.invite_url}}

Custodia360
`),
	server.TemplateBilling5mReminder: mustTemplate(server.TemplateBilling5mReminder,
		`Tu suscripción se renueva en {{.days_remaining}} días`,
		`Hola {{.entity_name}},

Tu periodo actual termina el {{.period_end}}. La renovación se cobrará automáticamente.

Custodia360
`),
	server.TemplateBilling11mReminder: mustTemplate(server.TemplateBilling11mReminder,
		`Última semana antes de la renovación`,
		`Hola {{.entity_name}},

Tu periodo actual termina el {{.period_end}} ({{.days_remaining}} días).
Revisa tus datos de pago antes de esa fecha.

Custodia360
`),
}

// render builds the email for job. entityName is exposed to the templates
// as entity_name next to the job context. A job without a stage renders as
// a warning. A key the template needs but the context lacks is an error, so
// the job fails instead of mailing placeholder text.
func render(job server.MessageJob, entityName string) (subject, text string, err error) {
	tpl, ok := templates[job.TemplateSlug]
	if !ok {
		return "", "", fmt.Errorf("no template for %q", job.TemplateSlug)
	}

	data := map[string]any{"stage": "warning"}
	for k, v := range job.Context {
		data[k] = v
	}
	data["entity_name"] = entityName

	var sb, bb bytes.Buffer
	if err := tpl.subject.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}
	if err := tpl.body.Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}
	return sb.String(), bb.String(), nil
}

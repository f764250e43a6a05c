package router

import "strings"

func (r *Router) helpText() string {
	cmds := r.commands()
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range cmds {
		usage := strings.TrimSpace(c.Usage)
		if usage == "" {
			usage = "/" + c.Name
		}
		b.WriteString(usage)
		if d := strings.TrimSpace(c.Description); d != "" {
			b.WriteString(" - " + d)
		}
		if c.Access == AccessOwnerOnly {
			b.WriteString(" (owner)")
		}
		if len(c.Aliases) > 0 {
			b.WriteString(" [/" + strings.Join(c.Aliases, ", /") + "]")
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

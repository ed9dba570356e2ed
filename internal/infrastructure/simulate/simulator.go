// Package simulate predicts the resource changes of a command without
// executing it. The simulator is a non-executing text interpreter: it never
// touches the real command runner, so calling it any number of times leaves
// the host untouched.
package simulate

import (
	"regexp"
	"strings"
	"time"

	"github.com/doeshing/safecmd/internal/domain"
	"github.com/doeshing/safecmd/internal/ports"
)

// Simulator implements ports.Simulator. It is stateless; the same command
// text always produces the same prediction.
type Simulator struct{}

// New builds a simulator.
func New() *Simulator {
	return &Simulator{}
}

// verbOps maps leading command verbs to the predicted resource operation.
// Kept as data so new verbs extend the table, not the control flow.
var verbOps = map[string]domain.ResourceOp{
	"rm": domain.OpDelete, "rmdir": domain.OpDelete, "del": domain.OpDelete,
	"unlink": domain.OpDelete, "remove-item": domain.OpDelete,
	"mv": domain.OpModify, "chmod": domain.OpModify, "chown": domain.OpModify,
	"sed": domain.OpModify, "truncate": domain.OpModify, "set-content": domain.OpModify,
	"cp": domain.OpCreate, "mkdir": domain.OpCreate, "touch": domain.OpCreate,
	"tar": domain.OpCreate, "new-item": domain.OpCreate,
	"ls": domain.OpRead, "cat": domain.OpRead, "head": domain.OpRead,
	"tail": domain.OpRead, "stat": domain.OpRead, "find": domain.OpRead,
	"grep": domain.OpRead, "pwd": domain.OpRead, "echo": domain.OpRead,
	"df": domain.OpRead, "du": domain.OpRead, "ps": domain.OpRead,
	"get-childitem": domain.OpRead, "get-content": domain.OpRead,
	"get-process": domain.OpRead, "get-service": domain.OpRead,
	"test-path": domain.OpRead,
}

var serviceVerbRe = regexp.MustCompile(`(?i)(systemctl\s+(stop|start|restart|disable|enable)\s+(\S+)|(stop|start|restart)-service\s+(?:-name\s+)?['"]?([^'"\s]+))`)

// Simulate implements ports.Simulator.
func (s *Simulator) Simulate(commandText string) domain.PredictedChangeSet {
	text := strings.TrimSpace(commandText)
	set := domain.PredictedChangeSet{
		CommandText:       text,
		EstimatedDuration: estimateDuration(text),
		RequiresAdmin:     requiresAdmin(text),
	}
	if text == "" {
		set.Notes = append(set.Notes, "empty command; nothing to predict")
		return set
	}

	verb := strings.ToLower(firstToken(text))
	if verb == "sudo" {
		rest := strings.TrimSpace(text[len("sudo"):])
		verb = strings.ToLower(firstToken(rest))
	}
	op, known := verbOps[verb]

	if m := serviceVerbRe.FindStringSubmatch(text); m != nil {
		name := m[3]
		if name == "" {
			name = m[5]
		}
		set.Changes = append(set.Changes, domain.PredictedChange{
			Resource:    domain.ResourceDescriptor{Kind: domain.ResourceService, Path: name},
			Operation:   domain.OpModify,
			Detail:      "service state will change",
			Destructive: true,
		})
		return set
	}

	for _, path := range pathTokens(text) {
		change := domain.PredictedChange{
			Resource:  describe(path),
			Operation: op,
		}
		switch {
		case !known:
			// Conservative default: an effect we cannot determine is
			// reported as unknown and treated as destructive, never omitted.
			change.Operation = domain.OpUnknown
			change.Destructive = true
			change.Detail = "unknown effect, treat as destructive"
		case op == domain.OpRead:
			change.Detail = "read-only access"
		case op == domain.OpDelete:
			change.Destructive = true
			change.Detail = "resource will be deleted"
		default:
			change.Destructive = true
			change.Detail = "resource will be created or modified"
		}
		set.Changes = append(set.Changes, change)
	}

	if len(set.Changes) == 0 {
		if known && op == domain.OpRead {
			set.Notes = append(set.Notes, "system state will be queried (read-only)")
		} else {
			set.Notes = append(set.Notes, "no resource reference recognised; treat command as destructive")
			set.Changes = append(set.Changes, domain.PredictedChange{
				Resource:    domain.ResourceDescriptor{Kind: domain.ResourceUnknown, Path: firstToken(text)},
				Operation:   domain.OpUnknown,
				Destructive: true,
				Detail:      "unknown effect, treat as destructive",
			})
		}
	}
	return set
}

// pathTokens extracts tokens that look like filesystem references. Flags and
// bare verbs are skipped; the first token is the verb itself.
func pathTokens(text string) []string {
	fields := strings.Fields(text)
	var paths []string
	for i, field := range fields {
		if i == 0 || strings.HasPrefix(field, "-") {
			continue
		}
		token := strings.Trim(field, `"'`)
		if strings.ContainsAny(token, `/\`) || strings.HasPrefix(token, "~") ||
			(strings.Contains(token, ".") && !strings.Contains(token, "=")) {
			paths = append(paths, token)
		}
	}
	return paths
}

func describe(path string) domain.ResourceDescriptor {
	kind := domain.ResourceFile
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, `\`) {
		kind = domain.ResourceDirectory
		path = strings.TrimRight(path, `/\`)
	}
	return domain.ResourceDescriptor{Kind: kind, Path: path}
}

func estimateDuration(text string) time.Duration {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "uninstall") || strings.Contains(lower, "msiexec"):
		return 2 * time.Minute
	case strings.Contains(lower, "-service") || strings.Contains(lower, "systemctl"):
		return 5 * time.Second
	default:
		return time.Second
	}
}

func requiresAdmin(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range []string{"sudo ", "systemctl ", "-service", "msiexec", "reg add", "reg delete", "sc stop", "sc delete"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func firstToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

var _ ports.Simulator = (*Simulator)(nil)

package strategy

import (
	"regexp"
	"strings"

	"github.com/newthinker/prism/internal/core"
)

// MaxSourceBytes caps the size of a program accepted by Validate.
const MaxSourceBytes = 64 << 10

var allowedModules = []string{"series", "math", "enum"}

// AllowedModules returns the only modules a program may import. The result
// is a copy.
func AllowedModules() []string {
	return append([]string(nil), allowedModules...)
}

var (
	importCallRe = regexp.MustCompile(`\bimport\s*\(`)
	importLitRe  = regexp.MustCompile("\\bimport\\s*\\(\\s*(?:\"([^\"]*)\"|`([^`]*)`)\\s*\\)")
	deniedRe     = regexp.MustCompile(`\b(os|exec|eval|open|compile|globals|locals|subprocess|socket|syscall|unsafe|reflect)\s*[.(]`)
	reservedRe   = regexp.MustCompile(`(?:^|[^\w])(__\w+)`)
	declRe       = regexp.MustCompile(`(?m)^\s*Strategy\s*:=\s*func\s*\(`)
	generateRe   = regexp.MustCompile(`\bgenerate_signals\s*:\s*func\s*\(`)
)

// Validate statically screens a program before anything executes. It is a
// first filter only; containment is the sandbox's job.
func Validate(p Program) error {
	src := p.Source
	if strings.TrimSpace(src) == "" {
		return core.Errorf(core.ErrValidation, "program is empty")
	}
	if len(src) > MaxSourceBytes {
		return core.Errorf(core.ErrValidation, "program is %d bytes, limit is %d", len(src), MaxSourceBytes)
	}

	literals := importLitRe.FindAllStringSubmatch(src, -1)
	if len(importCallRe.FindAllStringIndex(src, -1)) != len(literals) {
		return core.Errorf(core.ErrValidation, "imports must name a module with a string literal")
	}
	for _, m := range literals {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if !allowedModule(name) {
			return core.Errorf(core.ErrValidation, "import of module %q is not allowed (allowed: %s)",
				name, strings.Join(allowedModules, ", "))
		}
	}

	if m := deniedRe.FindStringSubmatch(src); m != nil {
		return core.Errorf(core.ErrValidation, "use of %q is not allowed", m[1])
	}
	if m := reservedRe.FindStringSubmatch(src); m != nil {
		return core.Errorf(core.ErrValidation, "identifier %q is reserved", m[1])
	}

	if !declRe.MatchString(src) {
		return core.Errorf(core.ErrValidation, "program must declare `Strategy := func(data) { ... }`")
	}
	if !generateRe.MatchString(src) {
		return core.Errorf(core.ErrValidation, "strategy must provide `generate_signals: func() { ... }`")
	}
	return nil
}

func allowedModule(name string) bool {
	for _, m := range allowedModules {
		if m == name {
			return true
		}
	}
	return false
}

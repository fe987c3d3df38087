// Package redirect parses shell redirection operators into an ordered
// plan of descriptor actions and applies that plan against an abstract
// descriptor table.
//
// The package exists to make one distinction observable: installing a
// descriptor by opening a path (which truncates or creates the target)
// versus installing it by duplicating an already-open descriptor (which
// touches the target file exactly zero times). Everything else is
// plumbing around that.
package redirect

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Defined by
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html#tag_18_07
//
// Supported forms, with n defaulting to 1 for output and 0 for input:
//
//	[n]>word    [n]>>word   [n]<word
//	[n]>&m      [n]<&m      [n]>&-      [n]<&-
//	&>word      &>>word     [n]>&word   (word non-numeric: stdout+stderr)
//
// The operator and its word may be fused ("2>&1") or split (">" "out").

// Op is the kind of a single plan action.
type Op int

const (
	// OpOpen opens Path with Flags and installs the result at slot FD.
	// This is the code path that issues an open(2), truncating or
	// creating the target per Flags.
	OpOpen Op = iota
	// OpDup duplicates slot From into slot FD. No open call is made;
	// both slots share one open file description afterwards.
	OpDup
	// OpClose closes slot FD.
	OpClose
)

func (o Op) String() string {
	switch o {
	case OpOpen:
		return "open"
	case OpDup:
		return "dup"
	case OpClose:
		return "close"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Action is one step of a redirection plan.
type Action struct {
	Op    Op
	FD    int
	Path  string // OpOpen only
	Flags int    // OpOpen only, os.O_* values
	From  int    // OpDup only
}

// FlagString renders open flags the way the trace log shows them.
func (a Action) FlagString() string {
	var parts []string
	switch {
	case a.Flags&os.O_RDWR != 0:
		parts = append(parts, "rw")
	case a.Flags&os.O_WRONLY != 0:
		parts = append(parts, "w")
	default:
		parts = append(parts, "r")
	}
	if a.Flags&os.O_CREATE != 0 {
		parts = append(parts, "create")
	}
	if a.Flags&os.O_TRUNC != 0 {
		parts = append(parts, "trunc")
	}
	if a.Flags&os.O_APPEND != 0 {
		parts = append(parts, "append")
	}
	return strings.Join(parts, "|")
}

func (a Action) String() string {
	switch a.Op {
	case OpOpen:
		return fmt.Sprintf("open %s (%s) -> fd %d", a.Path, a.FlagString(), a.FD)
	case OpDup:
		return fmt.Sprintf("dup fd %d -> fd %d", a.From, a.FD)
	case OpClose:
		return fmt.Sprintf("close fd %d", a.FD)
	default:
		return a.Op.String()
	}
}

// Plan is an ordered list of descriptor actions. Order matters:
// "2>&1 >f" and ">f 2>&1" produce different tables.
type Plan []Action

// MaxFD reports the highest slot the plan touches, or -1 for an empty
// plan.
func (p Plan) MaxFD() int {
	max := -1
	for _, a := range p {
		if a.FD > max {
			max = a.FD
		}
	}
	return max
}

const (
	flagsTruncate = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	flagsAppend   = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	flagsRead     = os.O_RDONLY
)

type operator struct {
	text    string
	outFD   int  // default fd when no prefix digit is given
	dup     bool // >& and <&
	both    bool // &> and &>>
	flags   int
	needsFD bool
}

// Longest match first.
var operators = []operator{
	{text: "&>>", both: true, flags: flagsAppend},
	{text: "&>", both: true, flags: flagsTruncate},
	{text: ">>", outFD: 1, flags: flagsAppend},
	{text: ">&", outFD: 1, dup: true, flags: flagsTruncate},
	{text: "<&", outFD: 0, dup: true, flags: flagsRead},
	{text: ">", outFD: 1, flags: flagsTruncate},
	{text: "<", outFD: 0, flags: flagsRead},
}

// Parse splits tokens into the command's argv and its redirection plan.
// Tokens are expected to already be word-split (see shlex); quoting is
// not re-examined here.
func Parse(tokens []string) (argv []string, plan Plan, err error) {
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		fd, op, word, ok := splitToken(tok)
		if !ok {
			argv = append(argv, tok)
			continue
		}

		if word == "" {
			// Split form: target is the next token.
			i++
			if i >= len(tokens) {
				return nil, nil, fmt.Errorf("syntax error near %q: missing redirection target", tok)
			}
			word = tokens[i]
		}

		actions, err := buildActions(fd, op, word)
		if err != nil {
			return nil, nil, err
		}
		plan = append(plan, actions...)
	}
	return argv, plan, nil
}

// splitToken breaks a token into an optional fd prefix, an operator and
// the remainder. ok is false when the token is a plain word.
func splitToken(tok string) (fd int, op operator, word string, ok bool) {
	rest := tok
	fd = -1

	// Leading descriptor number, e.g. the 2 in "2>&1".
	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 && digits < len(rest) && (rest[digits] == '>' || rest[digits] == '<') {
		n, err := strconv.Atoi(rest[:digits])
		if err != nil || n > maxSlot {
			return 0, operator{}, "", false
		}
		fd = n
		rest = rest[digits:]
	} else if digits > 0 {
		return 0, operator{}, "", false
	}

	for _, candidate := range operators {
		if strings.HasPrefix(rest, candidate.text) {
			if candidate.both && fd >= 0 {
				// "2&>f" is not a thing.
				return 0, operator{}, "", false
			}
			if fd < 0 {
				fd = candidate.outFD
			}
			return fd, candidate, rest[len(candidate.text):], true
		}
	}
	return 0, operator{}, "", false
}

// maxSlot bounds descriptor slots a plan may address. Ten slots covers
// every example in the lessons and keeps child descriptor tables small.
const maxSlot = 9

func buildActions(fd int, op operator, word string) (Plan, error) {
	if fd > maxSlot {
		return nil, fmt.Errorf("descriptor %d out of range (0-%d)", fd, maxSlot)
	}

	switch {
	case op.both:
		// &>word: truncate once, then share the description.
		return Plan{
			{Op: OpOpen, FD: 1, Path: word, Flags: op.flags},
			{Op: OpDup, FD: 2, From: 1},
		}, nil

	case op.dup:
		if word == "-" {
			return Plan{{Op: OpClose, FD: fd}}, nil
		}
		if from, err := strconv.Atoi(word); err == nil {
			if from > maxSlot || from < 0 {
				return nil, fmt.Errorf("descriptor %d out of range (0-%d)", from, maxSlot)
			}
			return Plan{{Op: OpDup, FD: fd, From: from}}, nil
		}
		if op.text == ">&" {
			// Bash treats ">&word" with a non-numeric word like "&>word".
			return Plan{
				{Op: OpOpen, FD: 1, Path: word, Flags: flagsTruncate},
				{Op: OpDup, FD: 2, From: 1},
			}, nil
		}
		return nil, fmt.Errorf("%s%s: bad file descriptor", op.text, word)

	default:
		return Plan{{Op: OpOpen, FD: fd, Path: word, Flags: op.flags}}, nil
	}
}

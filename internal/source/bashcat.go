package source

import (
	"regexp"
	"strings"
)

// Bash command categories, matched in order against the leading executable.
var bashCategories = []struct {
	name string
	re   *regexp.Regexp
}{
	{"Version Control", regexp.MustCompile(`^(git|gh)\b`)},
	{"Running Code", regexp.MustCompile(`^(python|python3|pip|pip3|node|npm|npx|yarn|pytest|uvicorn|mypy|ruff|black|isort|flake8|pylint)\b`)},
	{"Searching & Reading", regexp.MustCompile(`^(grep|rg|find|fd|ag|ack|ls|cat|head|tail|wc|tree|sort|uniq|tee|stat|du|df)\b`)},
	{"File Management", regexp.MustCompile(`^(mkdir|rmdir|rm|mv|cp|chmod|chown|ln|touch|tar|zip|unzip|gzip)\b`)},
	{"Testing & Monitoring", regexp.MustCompile(`^(curl|wget|ssh|scp|rsync|ping|nc|netstat|ss|ps|kill|pkill|top|htop|lsof|which|whereis)\b`)},
	{"Server & System", regexp.MustCompile(`^(systemctl|journalctl|service|docker|docker-compose|nginx|hostname|uname|date|whoami|env|export|echo|printf|sleep|sed|awk|sqlite3)\b`)},
}

const categoryOther = "Other"

var chainSplit = regexp.MustCompile(`\s*&&\s*|\s*;\s*`)

// CategorizeBash labels a shell command by its first meaningful segment.
// Chained segments that only change directory are skipped.
func CategorizeBash(cmd string) string {
	for _, seg := range chainSplit.Split(strings.TrimSpace(cmd), -1) {
		seg = strings.TrimSpace(seg)
		if i := strings.Index(seg, "|"); i >= 0 {
			seg = strings.TrimSpace(seg[:i])
		}
		if strings.HasPrefix(seg, "sudo ") {
			seg = strings.TrimSpace(seg[len("sudo "):])
		}
		seg = stripEnvAssignments(seg)
		if seg == "" {
			continue
		}

		words := strings.Fields(seg)
		if words[0] == "cd" {
			continue
		}
		if strings.HasPrefix(seg, "source ") || strings.HasPrefix(seg, ". ") {
			if strings.Contains(seg, "venv") || strings.Contains(seg, "activate") {
				return "Running Code"
			}
			return "Server & System"
		}

		exe := words[0]
		if i := strings.LastIndex(exe, "/"); i >= 0 {
			exe = exe[i+1:]
		}
		for _, c := range bashCategories {
			if c.re.MatchString(exe) {
				return c.name
			}
		}
		return categoryOther
	}
	return categoryOther
}

// stripEnvAssignments drops leading VAR=value words.
func stripEnvAssignments(seg string) string {
	words := strings.Fields(seg)
	i := 0
	for i < len(words) && strings.Contains(words[i], "=") {
		i++
	}
	return strings.Join(words[i:], " ")
}

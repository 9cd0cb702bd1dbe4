package shell

import (
	"path/filepath"
	"strings"
)

// BashInitFile is written into the session directory and passed to --rcfile.
const BashInitFile = "init.bash"

// prepareBash starts bash with --rcfile so ~/.bashrc is replaced by our init
// file, which sources it first. Bash reads HISTFILE after the rc files have
// run, so pointing it at the session history is enough to preload it.
func prepareBash(cfg Config) (*Launch, error) {
	var b strings.Builder
	b.WriteString("# generated by pshaw; rewritten on every attach\n")
	b.WriteString("[ -f " + Quote(filepath.Join(cfg.HomeDir, ".bashrc")) + " ] && . " +
		Quote(filepath.Join(cfg.HomeDir, ".bashrc")) + "\n\n")

	b.WriteString("shopt -s histappend\n")
	b.WriteString("HISTFILE=" + Quote(cfg.HistoryPath) + "\n")
	b.WriteString("HISTSIZE=" + itoa(cfg.HistorySize) + "\n")
	b.WriteString("HISTFILESIZE=" + itoa(cfg.HistorySize) + "\n\n")

	// history -a flushes the commands entered since the last prompt, so a
	// crash loses at most the line being typed.
	b.WriteString("__pshaw_prompt() {\n")
	b.WriteString("  local __pshaw_status=$?\n")
	b.WriteString("  builtin history -a\n")
	b.WriteString("  builtin pwd > " + Quote(cfg.PwdPath) + " 2>/dev/null\n")
	b.WriteString("  return $__pshaw_status\n")
	b.WriteString("}\n")
	b.WriteString("PROMPT_COMMAND=\"__pshaw_prompt${PROMPT_COMMAND:+; $PROMPT_COMMAND}\"\n\n")

	if cfg.Restore {
		b.WriteString(restoreBlock(cfg.PwdPath))
	}
	if cfg.Banner {
		b.WriteString(bannerLine(cfg.Label))
	}

	initPath := filepath.Join(cfg.SessionDir, BashInitFile)
	if err := writeInit(initPath, b.String()); err != nil {
		return nil, err
	}
	return &Launch{
		Args:      []string{"--rcfile", initPath, "-i"},
		InitFiles: []string{initPath},
	}, nil
}

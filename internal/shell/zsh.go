package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ZdotDir is the directory inside the session handed to zsh as ZDOTDIR.
const ZdotDir = "zdotdir"

// prepareZsh points ZDOTDIR at shim rc files. Each shim sources the user's
// own file from $HOME; .zshrc additionally redirects history and installs
// the precmd hook.
func prepareZsh(cfg Config) (*Launch, error) {
	dir := filepath.Join(cfg.SessionDir, ZdotDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create %s: %w", ZdotDir, err)
	}

	var files []string
	for _, name := range []string{".zshenv", ".zprofile", ".zlogin"} {
		path := filepath.Join(dir, name)
		if err := writeInit(path, sourceIfPresent(filepath.Join(cfg.HomeDir, name))); err != nil {
			return nil, err
		}
		files = append(files, path)
	}

	var b strings.Builder
	b.WriteString("# generated by pshaw; rewritten on every attach\n")
	b.WriteString(sourceIfPresent(filepath.Join(cfg.HomeDir, ".zshrc")))
	b.WriteString("\n")
	// zsh reads HISTFILE itself once the startup files are done.
	b.WriteString("HISTFILE=" + Quote(cfg.HistoryPath) + "\n")
	b.WriteString("HISTSIZE=" + itoa(cfg.HistorySize) + "\n")
	b.WriteString("SAVEHIST=" + itoa(cfg.HistorySize) + "\n")
	b.WriteString("setopt INC_APPEND_HISTORY\n")
	b.WriteString("unsetopt SHARE_HISTORY\n\n")

	b.WriteString("__pshaw_precmd() {\n")
	b.WriteString("  builtin pwd > " + Quote(cfg.PwdPath) + " 2>/dev/null\n")
	b.WriteString("}\n")
	b.WriteString("typeset -ga precmd_functions\n")
	b.WriteString("precmd_functions=(__pshaw_precmd ${precmd_functions:#__pshaw_precmd})\n\n")

	if cfg.Restore {
		b.WriteString(restoreBlock(cfg.PwdPath))
	}
	if cfg.Banner {
		b.WriteString(bannerLine(cfg.Label))
	}

	rc := filepath.Join(dir, ".zshrc")
	if err := writeInit(rc, b.String()); err != nil {
		return nil, err
	}
	files = append(files, rc)

	return &Launch{
		Args:      []string{"-i"},
		Env:       []string{"ZDOTDIR=" + dir},
		InitFiles: files,
	}, nil
}

func sourceIfPresent(path string) string {
	q := Quote(path)
	return "[ -f " + q + " ] && . " + q + "\n"
}

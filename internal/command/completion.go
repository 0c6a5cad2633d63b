// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package command

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/staranto/cachekit/internal/meta"
)

const bashCompletionScript = `# bash completion for cachekit
_cachekit()
{
    local cur prev cmd
    COMPREPLY=()
    cur=${COMP_WORDS[COMP_CWORD]}
    prev=${COMP_WORDS[COMP_CWORD-1]}

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "clear completion ls pull push run show stats uninstall watch --app -A --root --help --version" -- "$cur") )
        return 0
    fi

    cmd=${COMP_WORDS[1]}
    local listing="--color -c --filter -f --output -o --sort -s --titles -t"

    case "$cmd" in
        ls)        local opts="$listing --path" ;;
        stats)     local opts="$listing --prune-days" ;;
        show)      local opts="--path -p --pretty" ;;
        run)       local opts="--tag --json -j --key -k" ;;
        clear)     local opts="all --tag --days --years --date --broadcast -B" ;;
        push|pull) local opts="--bucket -b --prefix --region --profile --endpoint" ;;
        uninstall) local opts="--yes -y" ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh" -- "$cur") )
            return 0
            ;;
        *)         local opts="" ;;
    esac

    if [[ "$prev" == "--output" || "$prev" == "-o" ]]; then
        COMPREPLY=( $(compgen -W "text json raw yaml" -- "$cur") )
        return 0
    fi

    COMPREPLY=( $(compgen -W "$opts --app -A --root" -- "$cur") )
    return 0
}

complete -F _cachekit cachekit
`

const zshCompletionScript = `#compdef cachekit

_cachekit() {
  local -a cmds
  cmds=(
    'clear:invalidate cache entries'
    'completion:generate shell completion script'
    'ls:list cache documents'
    'pull:download cache documents from S3'
    'push:upload cache documents to S3'
    'run:memoize the output of a command'
    'show:print a cache document'
    'stats:summarize cache activity'
    'uninstall:remove the application cache storage'
    'watch:apply clears broadcast by other processes'
  )

  local -a listing
  listing=(
  '(-c --color)'{-c,--color}'[enable colored text]'
  '(-f --filter)'{-f,--filter}'[filters to apply]:filters'
  '(-o --output)'{-o,--output}'[output format]:format:(text json raw yaml)'
  '(-s --sort)'{-s,--sort}'[sort attributes]:attrs'
  '(-t --titles)'{-t,--titles}'[show titles]'
  )

  local -a bucket
  bucket=(
  '(-b --bucket)'{-b,--bucket}'[S3 bucket]:bucket'
  '--prefix[object key prefix]:prefix'
  '--region[AWS region]:region'
  '--profile[AWS profile]:profile'
  '--endpoint[S3 endpoint]:url'
  )

  if (( CURRENT == 2 )); then
    _describe -t commands 'cachekit commands' cmds
    return
  fi

  case $words[2] in
    ls)
      _arguments -C $listing '--path[include document path]'
      ;;
    stats)
      _arguments -C $listing '--prune-days[drop old events]:days'
      ;;
    show)
      _arguments -C '(-p --path)'{-p,--path}'[gjson path]:path' '--pretty[indent]' '1:name'
      ;;
    run)
      _arguments -C '*--tag[tag]:tag' '(-j --json)'{-j,--json}'[store JSON]' '(-k --key)'{-k,--key}'[key]:key' '1:name' '*::command:_normal'
      ;;
    clear)
      _arguments -C '*--tag[tag prefix]:tag' '--days[older than days]:days' '--years[older than years]:years' '--date[cutoff millis]:ms' '(-B --broadcast)'{-B,--broadcast}'[signal watchers]' '1:target:(all)'
      ;;
    push|pull)
      _arguments -C $bucket
      ;;
    uninstall)
      _arguments -C '(-y --yes)'{-y,--yes}'[do not ask]'
      ;;
    completion)
      _arguments '1: :((bash zsh))'
      ;;
  esac
}

# If this file is sourced directly (not autoloaded via fpath), ensure compsys is initialized and register the completion
if ! typeset -f compdef >/dev/null 2>&1; then
  autoload -Uz compinit && compinit -i
fi
compdef _cachekit cachekit
`

func CompletionCommandAction(ctx context.Context, cmd *cli.Command) error {
	shell := cmd.Args().First()
	if shell == "" {
		// Try to detect from SHELL.
		sh := os.Getenv("SHELL")
		switch {
		case strings.HasSuffix(sh, "zsh"):
			shell = "zsh"
		case strings.HasSuffix(sh, "bash"):
			shell = "bash"
		}
	}

	w := stdout(cmd)
	switch shell {
	case "bash":
		fmt.Fprint(w, bashCompletionScript)
	case "zsh":
		fmt.Fprint(w, zshCompletionScript)
	default:
		return fmt.Errorf("usage: cachekit completion [bash|zsh]")
	}
	return nil
}

func CompletionCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return &cli.Command{
		Name:      "completion",
		Usage:     "generate shell completion script",
		UsageText: "cachekit completion [bash|zsh]",
		Metadata: map[string]any{
			"meta": meta,
		},
		Action: CompletionCommandAction,
	}
}

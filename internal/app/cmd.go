package app

import (
	"fmt"
	"io"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はクリーンアップワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示することを示す。
	CommandHelp Command = "help"
)

var commandSummaries = []struct {
	cmd     Command
	usage   string
	summary string
}{
	{CommandServe, "serve", "APIサーバーを起動する（デフォルト）"},
	{CommandWorker, "worker", "定期クリーンアップを実行する"},
	{CommandMigrate, "migrate [up|down [N]|version]", "データベースマイグレーションを操作する"},
	{CommandHealthcheck, "healthcheck", "ローカルの /health を確認する"},
	{CommandHelp, "help", "この使い方を表示する"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "help", "-h", "--help":
		return CommandHelp
	default:
		return CommandServe
	}
}

// Usage はサブコマンドの一覧を書き出す。
func Usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: connectin <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commandSummaries {
		fmt.Fprintf(w, "  %-32s %s\n", c.usage, c.summary)
	}
}

// MigrateAction は migrate サブコマンドの操作。
type MigrateAction string

const (
	MigrateUp      MigrateAction = "up"
	MigrateDown    MigrateAction = "down"
	MigrateVersion MigrateAction = "version"
)

// MigrateArgs は migrate サブコマンドの引数。
type MigrateArgs struct {
	Action MigrateAction
	// Steps は down で取り消す件数。
	Steps int
}

// ParseMigrateArgs は "migrate" に続く引数を解析する。
// 引数なしは up。down の件数は省略時1。
func ParseMigrateArgs(args []string) (MigrateArgs, error) {
	if len(args) == 0 {
		return MigrateArgs{Action: MigrateUp}, nil
	}

	switch MigrateAction(args[0]) {
	case MigrateUp:
		return MigrateArgs{Action: MigrateUp}, nil
	case MigrateVersion:
		return MigrateArgs{Action: MigrateVersion}, nil
	case MigrateDown:
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return MigrateArgs{}, fmt.Errorf("invalid rollback steps %q", args[1])
			}
			steps = n
		}
		return MigrateArgs{Action: MigrateDown, Steps: steps}, nil
	default:
		return MigrateArgs{}, fmt.Errorf("unknown migrate action %q", args[0])
	}
}

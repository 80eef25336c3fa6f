package app

import (
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモード。引数なしの場合の既定。
	CommandServe Command = "serve"
	// CommandWorker は期限切れデータのクリーンアップを定期実行する。
	CommandWorker Command = "worker"
	// CommandMigrate は未適用のデータベースマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

// Usage はサブコマンドの一覧。
const Usage = `usage: bitesync [command]

commands:
  serve        start the API server (default)
  worker       run the periodic cleanup job
  migrate      apply pending database migrations
  healthcheck  probe /health on localhost:$SERVER_PORT
  help         show this message
`

var commands = map[string]Command{
	"serve":       CommandServe,
	"worker":      CommandWorker,
	"migrate":     CommandMigrate,
	"healthcheck": CommandHealthcheck,
	"help":        CommandHelp,
	"-h":          CommandHelp,
	"--help":      CommandHelp,
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。2番目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	cmd, ok := commands[strings.ToLower(args[0])]
	if !ok {
		return "", fmt.Errorf("unknown command %q", args[0])
	}
	return cmd, nil
}

// Command connectin はConnectInのAPIサーバー・ワーカー・マイグレーションを起動する。
//
//	connectin [serve|worker|migrate|healthcheck]
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/connectin/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("connectin exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// auctiond はリアルタイムオークションのバックエンドサーバー。
//
// サブコマンド:
//
//	serve       APIサーバーとして起動する（デフォルト）
//	worker      スイーパーとクリーンアップジョブのみを起動する
//	migrate     データベースマイグレーションを実行する
//	healthcheck /health エンドポイントを叩いて終了コードで結果を返す
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/auctiond/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

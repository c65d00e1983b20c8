package main

import (
	"github.com/shouni/go-storyboard-kit/cmd"
)

// main はアプリケーションのエントリーポイントです。
// コマンドライン引数の解析と実行は cmd パッケージに委ねます。
func main() {
	cmd.Execute()
}

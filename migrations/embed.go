// Package migrations 内嵌数据库 schema，服务启动时由 db.Migrate 执行
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

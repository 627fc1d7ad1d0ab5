// Package tlsutil 提供 worker 统一的 TLS 设置：
// 房间监听使用 ServerConfig，Gemini 与图片抓取的出站连接使用 Transport（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil

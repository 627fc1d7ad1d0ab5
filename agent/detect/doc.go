// Package detect 在转写后的用户语音中查找图片 URL。
//
// RegexDetector 先做关键字门控（必须同时包含 "http" 和图片扩展名），再用宽松的
// URL 正则取第一个匹配。检测逻辑隔离在 URLDetector 接口之后，便于替换。
package detect

/*
Package imagefetch 负责按 URL 下载远程图片。

每次 Fetch 只发起一次 GET（无自定义请求头、默认重定向策略），并受超时、
最大字节数和 x/time/rate 限流器约束。非 2xx 状态码返回 FETCH_STATUS 错误，
超时返回 TIMEOUT，超过上限返回 FETCH_TOO_BIG。失败不重试。

开启 BlockPrivate 后，拨号阶段会拒绝回环、内网和链路本地地址。
*/
package imagefetch

/*
Package bytestream 定义房间内的二进制字节流模型。

每个入站流由头部（Info：流 ID、主题、名称、MIME、总长度）开启，随后按
到达顺序推送数据块，最后由尾部结束。PendingStream 是传输层持有的在途
流，Drain 将读取器完整读取为单个缓冲区，并施加大小上限与超时。Registry
按主题登记处理函数，同一主题重复登记会返回 DUPLICATE_HANDLER 错误。
*/
package bytestream

/*
Package stream 定义流状态机、拉取式数据源契约与推转拉交接队列。

Handoff 是 consumer 代理与事件队列桥共用的核心结构，保证数据队列与
等待队列互斥、FIFO 交付以及恰好一次完成。
*/
package stream

// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 relay 实现会话中继核心：接入客户端 WebSocket 连接，按连接身份
注册会话，在客户端与 Gemini Live 上游之间双向转发结构化消息。

# 概述

每条客户端连接对应一个 Session，由 Server 在 accept 时创建并注册到
Registry，连接关闭（正常、出错或取消）时保证注销与上游资源释放，
任何退出路径都不遗留打开的上游通道或过期的注册表条目。

# 核心类型

  - Server：http.Handler，将请求升级为 WebSocket，每连接一个 goroutine
    驱动消息循环，内置 ping/liveness 探测。
  - Session：单客户端会话聚合，持有连接、追加式会话历史与至多一个
    上游适配器；入站分发按封闭的帧类型枚举穷尽匹配。
  - Registry：连接身份 → 会话的进程级映射，互斥锁保护并发
    注册/注销/查询，重复注册视为致命不变量违例。
  - Responder：文本进/文本出协作者接口，默认实现为规则表驱动的
    CannedResponder，可替换为任意上游模型。

# 并发模型

会话打开上游后存在两个并发流：入站循环（读客户端帧、上行转发）与
响应中继任务（持续抽取上游响应、写回客户端）。两者对同一客户端连接
的写操作经会话写锁串行化；中继任务由所属会话跟踪，随会话销毁被取消
并合流，绝不留下无人监督的后台循环。
*/
package relay

// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 upstream 封装与 Gemini Live (BidiGenerateContent) 的双工 WebSocket 会话。

# 概述

upstream 通过 Dial 建立到 Gemini Live API 的单条双工通道：发送 setup
握手报文、等待 setupComplete 确认，之后提供音频/文本上行与响应下行。
每个 Session 只拥有一条底层连接，由其所属的客户端会话独占。

# 核心类型

  - Config：上游配置，包含端点、API Key、模型、响应模态、系统指令
    与握手/发送超时。
  - Session：一条已打开的 Live 会话，状态机 Unopened → Open → Closed，
    不可逆。SendAudio/SendText 上行，Receive 返回已翻译的响应序列，
    Close 幂等且并发安全。
  - Message：一条已翻译的上游响应，文本片段或带 MIME 类型的原始字节，
    既无文本也无数据的上游报文在翻译时被静默跳过。

# 错误语义

拨号失败返回 UPSTREAM_UNAVAILABLE；握手被拒或超时返回
UPSTREAM_HANDSHAKE_FAILED 且不留下打开的通道；传输层发送失败返回
UPSTREAM_SEND_FAILED 并关闭会话；接收循环遇到传输错误时记录
UPSTREAM_RECEIVE_FAILED（经 Err 可见）后转入 Closed，通道正常关闭时
响应序列自然结束而非报错。
*/
package upstream

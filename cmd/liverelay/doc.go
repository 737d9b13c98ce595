// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 liverelay 服务端程序入口。

# 概述

cmd/liverelay 是 WebSocket 会话中继服务的可执行入口，将客户端双工
连接桥接到 Gemini Live 流式 API。程序支持 YAML 配置文件加载、
结构化日志（zap）与 Prometheus 指标采集。

# 核心类型

  - App — 主应用，组装中继服务器、Metrics 服务器与指标收集器，
    统一驱动生命周期与优雅关闭

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 双端口：中继端口暴露 /ws 与 /healthz，Metrics 端口暴露 /metrics
  - 优雅关闭：信号监听 → 并发关闭 HTTP 服务器 → 关闭存活会话
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main

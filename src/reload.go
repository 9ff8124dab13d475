package main

import (
	"fmt"
	"syscall"

	"KepuasanMasyarakat/src/config"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "通知运行中的服务清除缓存并重新打开日志(SIGHUP)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.Server.PIDFile == "" {
			return fmt.Errorf("server.pid_file 未配置")
		}
		pid, err := signalPIDFile(cfg.Server.PIDFile, syscall.SIGHUP)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已向进程 %d 发送 SIGHUP\n", pid)
		return nil
	},
}

// signalPIDFile 向 pid 文件中的进程发送信号
func signalPIDFile(path string, sig syscall.Signal) (int, error) {
	pid, err := readPIDFile(path)
	if err != nil {
		return 0, err
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return pid, fmt.Errorf("发送 %s 失败: %w", sig, err)
	}
	return pid, nil
}

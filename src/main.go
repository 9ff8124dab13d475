package main

import (
	"fmt"
	"os"

	"KepuasanMasyarakat/src/config"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "skm",
	Short: "Dasbor Survei Kepuasan Masyarakat",
	Long: `skm 读取问卷数据(远程表格优先, 本地文件兜底), 清洗后提供仪表盘接口.

子命令:
  serve   启动 HTTP 服务与后台任务
  load    加载一次数据并输出状态与汇总
  export  把清洗后的数据导出为 xlsx
  reload  通知运行中的服务重新加载`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "配置文件路径")
	rootCmd.AddCommand(serveCmd, loadCmd, exportCmd, reloadCmd)
}

// setup 读取配置并组装组件
func setup() (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

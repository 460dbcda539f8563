package main

func main() {
	// 初始化控制台
	InitFlag()
	// 开始安全退出任务
	InitSafeExit()
	// 初始化配置
	InitConf(configPath)
	// 初始化日志
	InitLog()
	// 开始任务
	if err := InitTask(); err != nil {
		log.Errorf("%s", err)
		SafeExitInst.Run(1)
	}
}

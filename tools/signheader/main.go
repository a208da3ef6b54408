package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"suanming_maya/utils"
)

// 排查子系统签名问题：按给定时间戳计算请求头，和对方日志中的值比对
func main() {
	timestamp := flag.String("timestamp", "", "毫秒时间戳，默认使用当前时间")
	expect := flag.String("expect", "", "日志中的Authorization值，可选")
	flag.Parse()

	// 加载.env文件
	_ = godotenv.Load()

	apiKey := os.Getenv("SUBSYSTEM_API_KEY")
	if apiKey == "" {
		log.Fatalf("SUBSYSTEM_API_KEY未设置")
	}

	ts := *timestamp
	if ts == "" {
		ts = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}
	if len(ts) < 4 {
		log.Fatalf("时间戳格式错误: %s", ts)
	}

	lastFour := ts[len(ts)-4:]
	auth := utils.CalculateAuthorizationHeader(apiKey, lastFour)

	fmt.Printf("timestamp: %s\n", ts)
	fmt.Printf("输入: %s\n", "<api_key>"+lastFour)
	fmt.Printf("Authorization: %s\n", auth)
	if *expect != "" {
		fmt.Printf("是否匹配: %v\n", auth == *expect)
	}
}

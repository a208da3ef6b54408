package docs

// @title 算命学×玛雅历 综合分析 API
// @version 1.0
// @description 合并算命学与玛雅历两个子系统的结果，按权重计算各类别运势得分并生成文字建议
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey AdminToken
// @in header
// @name X-Admin-Token

// main.go — asset-proxy-token: выпуск и проверка capability-токенов
// с тем же ключом подписи, что и у Asset Proxy (AP_JWT_SECRET).
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Getenv).Execute(); err != nil {
		os.Exit(1)
	}
}

/*
mfctext
Copyright (C) 2023 Gareth Jones
Copyright (C) 2023, 2024 Callan Barrett

This file is part of mfctext.

mfctext is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

mfctext is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with mfctext.  If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/cli"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/service"
	"github.com/wizzomafizzo/mfctext/pkg/utils"
)

func main() {
	flags := cli.SetupFlags()
	flags.Pre()

	defaults := config.DefaultUserConfig()
	defaults.MfcText.ProbeDevice = true
	defaults.MfcText.ConsoleLogging = true

	cfg := cli.Setup(defaults)
	flags.Post(cfg)

	fmt.Println("mfctext v" + config.Version)

	stopSvc, err := service.Start(cfg)
	if err != nil {
		log.Error().Msgf("error starting service: %s", err)
		_, _ = fmt.Fprintln(os.Stderr, "Error starting service:", err)
		os.Exit(1)
	}

	ip, err := utils.GetLocalIp()
	if err != nil {
		fmt.Println("Device address: Unknown")
	} else {
		fmt.Printf("Device address: %s:%s\n", ip.String(), cfg.GetApiPort())
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("Press Ctrl+C to exit")
	<-sigs

	err = stopSvc()
	if err != nil {
		log.Error().Msgf("error stopping service: %s", err)
		_, _ = fmt.Fprintln(os.Stderr, "Error stopping service:", err)
		os.Exit(1)
	}

	os.Exit(0)
}

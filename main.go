package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dweymouth/localsonic/backend"
	"github.com/dweymouth/localsonic/res"
	"github.com/dweymouth/localsonic/ui/console"
)

func main() {
	flag.Parse()
	if *backend.FlagVersion {
		fmt.Println(res.DisplayName, res.AppVersion)
		fmt.Println(res.Copyright)
		return
	}
	if *backend.FlagHelp {
		flag.Usage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *backend.FlagEngineOnly {
		if err := backend.RunEngineOnly(ctx, res.AppName, res.AppVersionTag); err != nil {
			log.Fatalf("audio backend error: %v", err)
		}
		return
	}

	myApp, err := backend.StartupApp(res.AppName, res.DisplayName, res.AppVersionTag)
	if errors.Is(err, backend.ErrAnotherInstance) {
		return
	}
	if err != nil {
		log.Fatalf("fatal startup error: %v", err.Error())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	myApp.OnExit = cancel

	con := console.New(myApp.PlaybackManager, os.Stdout)
	con.MusicFolder = myApp.MusicFolder()
	con.Attach()
	myApp.Start()

	fmt.Printf("%s %s. Type help for a list of commands.\n", res.DisplayName, res.AppVersion)
	if myApp.IsFirstLaunch() {
		fmt.Println("Add music with \"folder\" or \"add <path>\". Set Library.MusicFolder in the config file to choose the default folder.")
	}
	go func() {
		if err := con.Run(ctx, os.Stdin); err != nil {
			log.Printf("console error: %v", err)
		}
		cancel()
	}()
	<-ctx.Done()
	con.Close()

	log.Println("Running shutdown tasks...")
	myApp.Shutdown()
}

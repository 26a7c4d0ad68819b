// Command nodeserver runs one node: it reads the node XML, listens for
// clients with an echoing NetProxy, connects to redis and serves metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lcx/commlib/app"
	"github.com/lcx/commlib/config"
	"github.com/lcx/commlib/log"
	"github.com/lcx/commlib/metrics"
	"github.com/lcx/commlib/net"
	"github.com/lcx/commlib/net/packet"
	"github.com/lcx/commlib/net/redis"
	"github.com/lcx/commlib/service"
)

const (
	_gameServiceID service.ServiceID = 10

	_cmdEcho  uint16 = 1
	_cmdCount uint16 = 2
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseFlags() (*viper.Viper, error) {
	fs := pflag.NewFlagSet("nodeserver", pflag.ContinueOnError)
	fs.String("config", "node.xml", "node xml file")
	fs.String("nodeid", "", "node id, plain or area.set.func.inst")
	fs.String("srvname", "game", "node name, used when nodeid is empty")
	fs.String("confdir", "./configs", "directory of the yaml sections")
	fs.String("env", "development", "environment sub directory of confdir")
	fs.String("loglevel", "", "log level override")
	fs.String("notify", "", "url posted with the node id once the node is ready")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("NODE")
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	return v, nil
}

func run() error {
	v, err := parseFlags()
	if err != nil {
		return err
	}

	cm := config.GetInstance()
	cm.SetBasePath(v.GetString("confdir"))
	cm.SetEnvironment(v.GetString("env"))
	defer config.ResetInstance()

	if err := log.InitializeWithConfigManager(cm); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	if s := v.GetString("loglevel"); s != "" {
		level, err := log.ParseLevel(s)
		if err != nil {
			return err
		}
		log.SetLevel(level)
	}

	nodeConf, err := config.LoadNodeConf(v.GetString("config"), v.GetString("nodeid"), v.GetString("srvname"))
	if err != nil {
		return err
	}
	log.Info().Str("node", nodeConf.NodeID.String()).Str("name", nodeConf.Name).Str("listen", nodeConf.ListenEndpoint()).Msg("node conf loaded")

	a, err := app.Init(nodeConf)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	game := newGameService(a.Net(), a.HttpClient(), nodeConf, v.GetString("notify"))
	if err := a.Attach(game); err != nil {
		return err
	}

	httpSrv := &stdhttp.Server{
		Addr:              ":" + strconv.Itoa(int(nodeConf.HTTPPort)),
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics endpoint failed")
		}
	}()

	a.WaitSigInt()
	log.Info().Msg("sigint received, shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	return nil
}

// gameService accepts clients, echoes their packets and counts them in redis.
type gameService struct {
	*service.ServiceHandle
	netSrv    *net.NetService
	http      *net.HttpClientService
	nodeConf  *config.NodeConf
	notifyURL string
	proxy     *net.NetProxy
	redis     *redis.Client
}

func newGameService(netSrv *net.NetService, http *net.HttpClientService, nodeConf *config.NodeConf, notifyURL string) *gameService {
	g := &gameService{
		ServiceHandle: service.NewServiceHandle(_gameServiceID, "game"),
		netSrv:        netSrv,
		http:          http,
		nodeConf:      nodeConf,
		notifyURL:     notifyURL,
		proxy:         net.NewNetProxy(packet.PacketTypeClient, nodeConf.EncryptToken),
	}
	g.proxy.SetRecvLimit(netSrv.Cfg().RecvLimitPerSecond, netSrv.Cfg().RecvBurst)
	g.proxy.SetPacketHandler(_cmdEcho, g.onEcho)
	g.proxy.SetPacketHandler(_cmdCount, g.onCount)
	return g
}

// Conf queues the bring-up; the listen step suspends until the listener
// reported back.
func (g *gameService) Conf() {
	st := g.Startup()
	st.AddStep("connect redis", func() bool {
		r := g.nodeConf.DbRedis
		g.redis = redis.ConnectToRedis(g, r.Endpoint(), r.Pass, r.DbIndex, g.netSrv)
		return true
	})
	st.AddStep("listen", func() bool {
		g.netSrv.Listen(g, g.nodeConf.ListenEndpoint(), packet.PacketTypeClient, g.onListen, g.onAccept)
		return false
	})
	st.AddStep("ready", func() bool {
		g.Logger().Info().Int("limit_players", int(g.nodeConf.LimitPlayers)).Msg("node ready")
		if g.notifyURL != "" {
			g.http.Post(g, g.notifyURL, "text/plain", []byte(g.nodeConf.NodeID.String()), g.onNotified)
		}
		return true
	})
	g.RunInService(st.Exec)
}

func (g *gameService) Update() {}

func (g *gameService) onListen(addr string, err error) {
	if err != nil {
		g.Logger().Fatal().Str("addr", g.nodeConf.ListenEndpoint()).Err(err).Msg("listen failed")
		return
	}
	g.Logger().Info().Str("addr", addr).Msg("listening")
	g.Startup().Resume()
}

func (g *gameService) onNotified(resp *net.HttpResponse, err error) {
	if err != nil {
		g.Logger().Warn().Str("url", g.notifyURL).Err(err).Msg("ready notification failed")
		return
	}
	if !resp.Succeed() {
		g.Logger().Warn().Str("url", g.notifyURL).Int("status", resp.StatusCode).Msg("ready notification rejected")
	}
}

func (g *gameService) onAccept(*net.Connection) net.ConnHandler {
	return net.ConnHandler{
		OnEstablish: func(conn *net.Connection) {
			if g.nodeConf.LimitPlayers > 0 && g.proxy.Len() >= int(g.nodeConf.LimitPlayers) {
				g.Logger().Warn().Str("conn", conn.String()).Msg("player limit reached")
				conn.Close()
				return
			}
			g.proxy.OnIncomingConn(conn, len(g.nodeConf.EncryptToken) > 0)
		},
		OnRead: g.proxy.OnNetPacket,
		OnLost: g.proxy.OnHdLost,
	}
}

func (g *gameService) onEcho(p *net.NetProxy, conn *net.Connection, cmd uint16, body []byte) {
	if err := p.SendRaw(conn, cmd, body); err != nil {
		g.Logger().Warn().Str("conn", conn.String()).Err(err).Msg("echo failed")
	}
}

func (g *gameService) onCount(p *net.NetProxy, conn *net.Connection, cmd uint16, _ []byte) {
	key := "node:" + g.nodeConf.NodeID.String() + ":count"
	g.redis.Incr(key, func(r redis.Reply) {
		if r.IsNull() || r.IsError() {
			g.Logger().Warn().Str("reply", r.String()).Msg("count failed")
			return
		}
		_ = p.SendRaw(conn, cmd, []byte(strconv.FormatInt(r.Integer(), 10)))
	})
}

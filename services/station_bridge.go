package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/chenguojun06-star/fz66666-sub008/config"
	"github.com/chenguojun06-star/fz66666-sub008/logger"
)

// Prechecker is the part of PredictionService the station bridge needs.
type Prechecker interface {
	PrecheckScan(ctx context.Context, req PrecheckRequest) (*PrecheckResult, error)
}

// StationScan is what a floor scanner publishes on <prefix>/<tenantId>/scan.
type StationScan struct {
	StationID      string   `json:"stationId"`
	OrderID        string   `json:"orderId"`
	StageName      string   `json:"stageName"`
	ScanType       string   `json:"scanType"`
	Quantity       int      `json:"quantity"`
	ElapsedMinutes *float64 `json:"elapsedMinutes"`
}

// StationReply goes back on <prefix>/<tenantId>/precheck.
type StationReply struct {
	StationID string          `json:"stationId"`
	OrderID   string          `json:"orderId"`
	Result    *PrecheckResult `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// StationBridge answers scan prechecks for stations that speak MQTT instead of
// HTTP. The tenant is the topic segment; broker ACLs keep stations in their own
// tenant's topics.
type StationBridge struct {
	prechecker Prechecker
	cfg        config.MQTTConfig
	log        *logger.Logger
	client     mqtt.Client
}

func NewStationBridge(prechecker Prechecker, cfg config.MQTTConfig, baseLog *logger.Logger) *StationBridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "fz/stations"
	}
	return &StationBridge{
		prechecker: prechecker,
		cfg:        cfg,
		log:        baseLog.With("service", "StationBridge"),
	}
}

func (b *StationBridge) subscribeTopic() string {
	return b.cfg.TopicPrefix + "/+/scan"
}

// Start connects and keeps the subscription alive across reconnects.
func (b *StationBridge) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.BrokerURL)
	opts.SetClientID(b.cfg.ClientID + "-" + time.Now().Format("20060102150405"))
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, message mqtt.Message) {
		b.dispatch(ctx, client, message.Topic(), message.Payload())
	})
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(b.subscribeTopic(), 1, nil)
		token.Wait()
		if token.Error() != nil {
			b.log.Error("mqtt subscribe failed", "topic", b.subscribeTopic(), "error", token.Error())
			return
		}
		b.log.Info("station bridge subscribed", "topic", b.subscribeTopic())
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		b.log.Warn("mqtt connection lost", "error", err)
	}

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		// the client keeps retrying and subscribes in OnConnect
		b.log.Warn("mqtt broker not reachable yet, retrying in background", "broker", b.cfg.BrokerURL)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", b.cfg.BrokerURL, err)
	}
	return nil
}

func (b *StationBridge) Stop() {
	if b.client != nil {
		b.client.Disconnect(250)
		b.client = nil
	}
}

func (b *StationBridge) dispatch(ctx context.Context, client mqtt.Client, topic string, payload []byte) {
	replyTopic, reply, err := b.HandleMessage(ctx, topic, payload)
	if err != nil {
		stationMessages.WithLabelValues("dropped").Inc()
		b.log.Warn("station message dropped", "topic", topic, "error", err)
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		b.log.Error("encode station reply", "error", err)
		return
	}
	client.Publish(replyTopic, 1, false, data)
}

// HandleMessage turns one scan message into its reply. An error means the message
// cannot be answered at all (bad topic or undecodable payload); rejected scans are
// answered with an error reply instead.
func (b *StationBridge) HandleMessage(ctx context.Context, topic string, payload []byte) (string, *StationReply, error) {
	tenantID, err := b.tenantFromTopic(topic)
	if err != nil {
		return "", nil, err
	}
	var scan StationScan
	if err := json.Unmarshal(payload, &scan); err != nil {
		return "", nil, fmt.Errorf("decode scan: %w", err)
	}

	replyTopic := fmt.Sprintf("%s/%d/precheck", b.cfg.TopicPrefix, tenantID)
	reply := &StationReply{StationID: scan.StationID, OrderID: scan.OrderID}

	res, err := b.precheck(ctx, tenantID, scan)
	if err != nil {
		stationMessages.WithLabelValues("rejected").Inc()
		if IsValidation(err) {
			reply.Error = err.Error()
		} else {
			b.log.Error("station precheck failed", "tenant_id", tenantID, "error", err)
			reply.Error = "internal error"
		}
		return replyTopic, reply, nil
	}
	stationMessages.WithLabelValues("answered").Inc()
	reply.Result = res
	return replyTopic, reply, nil
}

// precheck rejects scans without an elapsed time; zero would read as instant work.
func (b *StationBridge) precheck(ctx context.Context, tenantID int64, scan StationScan) (*PrecheckResult, error) {
	if scan.ElapsedMinutes == nil {
		return nil, newValidationError("elapsedMinutes", "is required")
	}
	return b.prechecker.PrecheckScan(ctx, PrecheckRequest{
		TenantID:       tenantID,
		OrderID:        scan.OrderID,
		StageName:      scan.StageName,
		ScanType:       scan.ScanType,
		Quantity:       scan.Quantity,
		ElapsedMinutes: *scan.ElapsedMinutes,
	})
}

func (b *StationBridge) tenantFromTopic(topic string) (int64, error) {
	rest, ok := strings.CutPrefix(topic, b.cfg.TopicPrefix+"/")
	if !ok {
		return 0, fmt.Errorf("topic %q outside %s", topic, b.cfg.TopicPrefix)
	}
	tenantPart, suffix, ok := strings.Cut(rest, "/")
	if !ok || suffix != "scan" {
		return 0, fmt.Errorf("topic %q is not a scan topic", topic)
	}
	tenantID, err := strconv.ParseInt(tenantPart, 10, 64)
	if err != nil || tenantID <= 0 {
		return 0, fmt.Errorf("topic %q has no valid tenant id", topic)
	}
	return tenantID, nil
}

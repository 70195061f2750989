// Package influxdb records time series for pincore: every sensor reading
// as it arrives and every pin output directive as it is sent.
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without history graphs
//	}
//	client.SetOnError(func(err error) { logger.Warn("influx write failed", "error", err) })
//	defer client.Close()
//
// Points:
//
//	sensor_reading,site,sensor_id            value=<float>
//	pin_output,site,module_id,pin_id,cause   level=<0|1>,state="<mode>"
//
// Writes never block the caller. The SQLite pin history stays the
// authoritative record; InfluxDB is for dashboards.
package influxdb
